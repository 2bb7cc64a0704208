package websocket

import (
	"net/http"

	"github.com/Hazyshades/mantle-estate-sub001/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// TokenParser resolves a bearer token into an identity
type TokenParser func(token string) (auth.Identity, error)

// Server represents the WebSocket server
type Server struct {
	Hub        *Hub
	upgrader   websocket.Upgrader
	parseToken TokenParser
}

// NewServer creates a new WebSocket server. Browsers cannot set headers on
// the upgrade request, so the token is read from the "token" query parameter.
func NewServer(parseToken TokenParser, allowedOrigins []string) *Server {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return &Server{
		Hub:        NewHub(),
		parseToken: parseToken,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// Start starts the WebSocket server
func (s *Server) Start() {
	go s.Hub.Run()
	logrus.Info("WebSocket server started")
}

// Stop stops the WebSocket server
func (s *Server) Stop() {
	s.Hub.Stop()
	logrus.Info("WebSocket server stopped")
}

// HandleWebSocket upgrades the connection. Anonymous clients may follow pool
// topics; balance topics need a valid token.
func (s *Server) HandleWebSocket(c *gin.Context) {
	var userID string
	if token := c.Query("token"); token != "" && s.parseToken != nil {
		id, err := s.parseToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication failed", "code": "AUTH_FAILED"})
			return
		}
		userID = id.UserID
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := NewClient(conn, s.Hub, uuid.NewString(), userID)
	send(s.Hub, s.Hub.Register, client)

	go client.WritePump()
	go client.ReadPump()
}

// HandleWebSocketStats returns WebSocket connection statistics
func (s *Server) HandleWebSocketStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.Hub.GetStats())
}

// RegisterRoutes registers WebSocket routes
func (s *Server) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ws", s.HandleWebSocket)
	router.GET("/ws/stats", s.HandleWebSocketStats)
}
