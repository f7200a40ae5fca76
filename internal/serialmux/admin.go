package serialmux

import (
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/anygrow.bridge/internal/protocol"
)

var writeFrameTemplate = template.Must(template.New("write-frame").Parse(`<!DOCTYPE html>
<html><head><title>serial write</title></head>
<body>
<h1>Write a frame to the board</h1>
<form method="post" action="write-frame-api">
<select name="frame">
<option value="request">Sensor request</option>
{{range .}}<option value="{{.}}">LED {{.}}</option>
{{end}}</select>
<button type="submit">Write</button>
</form>
<h2>Tail</h2>
<pre id="tail"></pre>
<script>
const tail = document.getElementById("tail");
new EventSource("tail").onmessage = (e) => { tail.textContent += e.data + "\n"; };
</script>
</body></html>
`))

// resolveDebugFrame maps the debug form value to one of the fixed frames.
func resolveDebugFrame(name string) ([]byte, error) {
	if strings.EqualFold(strings.TrimSpace(name), "request") {
		return protocol.SensorRequestFrame(), nil
	}
	mode, err := protocol.ParseMode(name)
	if err != nil {
		return nil, err
	}
	return mode.Frame(), nil
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, s.Write, s.Subscribe, s.Unsubscribe)
}

func attachAdminRoutes(mux *http.ServeMux, write func([]byte) error, subscribe func() (string, chan string), unsubscribe func(string)) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("write-frame", "write a sensor request or LED frame to the serial port", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		modes := []protocol.Mode{protocol.ModeOff, protocol.ModeOn, protocol.ModeMood}
		if err := writeFrameTemplate.Execute(w, modes); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("write-frame-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		name := r.FormValue("frame")
		frame, err := resolveDebugFrame(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := write(frame); err != nil {
			http.Error(w, "Failed to write frame", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote %s frame (%s) to serial port", name, protocol.RenderTokens(frame)))
	})

	// Server-Sent Events for every chunk read from the port.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := subscribe()
		defer unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
