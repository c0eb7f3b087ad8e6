package voice

import (
	"sync"

	"github.com/gorilla/websocket"
)

// ConnectionManager 跟踪仍在使用的 agent WebSocket 连接，关闭服务时统一释放
type ConnectionManager struct {
	connections map[string]*websocket.Conn
	mu          sync.RWMutex
}

// NewConnectionManager 创建连接管理器
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*websocket.Conn),
	}
}

// AddConnection 添加连接
func (cm *ConnectionManager) AddConnection(connectID string, conn *websocket.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	// 如果已存在连接，先关闭旧连接
	if oldConn, exists := cm.connections[connectID]; exists && oldConn != nil {
		oldConn.Close()
	}

	cm.connections[connectID] = conn
}

// RemoveConnection 移除连接；连接本身由调用方关闭
func (cm *ConnectionManager) RemoveConnection(connectID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.connections, connectID)
}

// count 返回当前打开的连接数
func (cm *ConnectionManager) count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// CloseAll 关闭所有连接
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for connectID, conn := range cm.connections {
		if conn != nil {
			conn.Close()
		}
		delete(cm.connections, connectID)
	}
}
