package chat

// Session holds the ordered turns exchanged under one session id on one day.
type Session struct {
	ID    string `json:"session_id"`
	Date  string `json:"date"`
	Turns []Turn `json:"messages"`
}

// DayBucket groups the interaction counter and the transcripts of a calendar day.
type DayBucket struct {
	Count    int               `json:"count"`
	Sessions map[string][]Turn `json:"sessions"`
}

// DateLayout is the key format of day buckets.
const DateLayout = "2006-01-02"
