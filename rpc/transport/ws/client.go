package ws

import (
	"fmt"
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"github.com/ValentinKolb/hwbridge/rpc/transport"
	"github.com/gorilla/websocket"
	"strings"
	"sync"
	"time"
)

// receiveBuffer is the number of inbound frames buffered per client
const receiveBuffer = 64

// clientTransport is a single websocket connection to the bridge
type clientTransport struct {
	config    common.ClientConfig
	conn      *websocket.Conn
	writeMu   sync.Mutex
	frames    chan []byte
	closeOnce sync.Once
}

// NewWSClientTransport creates a new websocket client transport
func NewWSClientTransport() transport.IRPCClientTransport {
	return &clientTransport{}
}

// URL returns the websocket url for endpoint. Endpoints without a scheme are
// dialed with ws://
func URL(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "ws://" + endpoint
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if config.Endpoint == "" {
		return fmt.Errorf("no endpoint provided")
	}
	if t.conn != nil {
		return fmt.Errorf("already connected to %s", t.config.Endpoint)
	}
	t.config = config

	dialer := websocket.Dialer{HandshakeTimeout: config.Timeout()}
	conn, _, err := dialer.Dial(URL(config.Endpoint), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %v", config.Endpoint, err)
	}
	conn.SetReadLimit(MaxFrameSize)

	t.conn = conn
	t.frames = make(chan []byte, receiveBuffer)
	go t.readFrames()

	Logger.Infof("Connected to %s using ws transport", URL(config.Endpoint))
	return nil
}

func (t *clientTransport) Send(frame []byte) error {
	if t.conn == nil {
		return fmt.Errorf("not connected")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.config.TimeoutSecond > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.config.Timeout())); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

func (t *clientTransport) Receive() <-chan []byte {
	return t.frames
}

func (t *clientTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.conn == nil {
			return
		}
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		err = t.conn.Close()
	})
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// readFrames reads messages until the connection ends and publishes them on
// t.frames. Pings from the server are answered by the default ping handler.
func (t *clientTransport) readFrames() {
	defer close(t.frames)
	for {
		_, frame, err := t.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				Logger.Debugf("Connection to %s ended: %v", t.config.Endpoint, err)
			}
			return
		}
		t.frames <- frame
	}
}
