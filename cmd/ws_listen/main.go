package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Display messages (duplicated from the daemon for a standalone binary)
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type paramView struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Display string `json:"display"`
	CV      struct {
		Source       int     `json:"source"`
		Attenuverter float64 `json:"attenuverter"`
		Active       bool    `json:"active"`
	} `json:"cv"`
}

type menuState struct {
	Selected int    `json:"selected"`
	Mode     string `json:"mode"`
	Item     string `json:"item"`
}

type snapshot struct {
	Mode            string      `json:"mode"`
	Page            string      `json:"page"`
	PageLabels      []string    `json:"page_labels"`
	PageValues      []float64   `json:"page_values"`
	Menu            menuState   `json:"menu"`
	WindowStart     int         `json:"window_start"`
	WindowEnd       int         `json:"window_end"`
	Params          []paramView `json:"params"`
	Catchers        []string    `json:"catchers"`
	CalibrationStep int         `json:"calibration_step"`
	Notice          string      `json:"notice"`
	Preset          string      `json:"preset"`
}

type modeChanged struct {
	Mode string `json:"mode"`
	Page string `json:"page"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:8088/ws/state", "eurobrainz display websocket URL")
		raw   = flag.Bool("raw", false, "Print frames as received instead of rendering them")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	// Handle shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	// Answer daemon pings and extend the deadline.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				log.Printf("ping failed: %v", err)
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			if *raw {
				fmt.Printf("%s\n", message)
				continue
			}
			handleTextMessage(os.Stdout, message)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// handleTextMessage renders one display frame to w.
func handleTextMessage(w io.Writer, message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Fprintf(w, "[TEXT] %s\n", message)
		return
	}

	switch env.Type {
	case "state_init", "state_changed":
		var snap snapshot
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			fmt.Fprintf(w, "[%s] bad payload: %v\n", env.Type, err)
			return
		}
		if env.Type == "state_init" {
			fmt.Fprintln(w, "[INIT]")
		}
		fmt.Fprint(w, renderSnapshot(snap))

	case "mode_changed":
		var mc modeChanged
		if err := json.Unmarshal(env.Data, &mc); err != nil {
			fmt.Fprintf(w, "[mode_changed] bad payload: %v\n", err)
			return
		}
		fmt.Fprintf(w, "[MODE] %s (%s)\n", mc.Mode, mc.Page)

	default:
		fmt.Fprintf(w, "[%s] %s\n", strings.ToUpper(env.Type), env.Data)
	}
}

// renderSnapshot draws the screen the way the panel shows it.
func renderSnapshot(s snapshot) string {
	var b strings.Builder

	switch s.Mode {
	case "parameters":
		fmt.Fprintf(&b, "[PARAMETERS] %s\n", s.Menu.Mode)
		for i := s.WindowStart; i < s.WindowEnd && i < len(s.Params); i++ {
			p := s.Params[i]
			cursor := " "
			if i == s.Menu.Selected {
				cursor = ">"
			}
			cv := ""
			if p.CV.Active {
				cv = fmt.Sprintf("  cv%d x%+.2f", p.CV.Source+1, p.CV.Attenuverter)
			}
			fmt.Fprintf(&b, " %s %-12s %s%s\n", cursor, p.Name, p.Display, cv)
		}
		if strings.HasPrefix(s.Menu.Mode, "submenu") {
			fmt.Fprintf(&b, "   editing %s\n", s.Menu.Item)
		}

	case "calibration":
		fmt.Fprintf(&b, "[CALIBRATION] step %d\n", s.CalibrationStep)

	default:
		fmt.Fprintf(&b, "[PLAY] %s\n", s.Page)
		for i, label := range s.PageLabels {
			v := 0.0
			if i < len(s.PageValues) {
				v = s.PageValues[i]
			}
			state := ""
			if i < len(s.Catchers) {
				state = "  " + s.Catchers[i]
			}
			fmt.Fprintf(&b, "   %-12s %.3f%s\n", label, v, state)
		}
	}

	if s.Preset != "" {
		fmt.Fprintf(&b, "   preset: %s\n", s.Preset)
	}
	if s.Notice != "" {
		fmt.Fprintf(&b, "   ! %s\n", s.Notice)
	}
	return b.String()
}
