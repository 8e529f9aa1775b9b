package web

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/sweeney/keypad-scanner/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"ms": func(ms int64) string {
		if ms == 0 {
			return "disabled"
		}
		return (time.Duration(ms) * time.Millisecond).String()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Keypad Scanner</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.key { font-size: 1.6em; font-weight: bold; }
.none { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.error { color: red; }
</style>
</head>
<body>
<h1>Keypad Scanner</h1>

<h2>Keypad</h2>
<table>
<tr><th>Last key</th><td id="last-key">{{if .HasLastKey}}<span class="key">{{printf "%c" .LastKey}}</span> at {{.LastKeyAt.UTC.Format "2006-01-02T15:04:05Z"}}{{else}}<span class="none">none</span>{{end}}</td></tr>
<tr><th>Matrix</th><td>{{.Config.Rows}} x {{.Config.Cols}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Backend}}{{if .Config.Chip}} ({{.Config.Chip}}){{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topic prefix</th><td>{{.Config.TopicPrefix}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Key Presses</h2>
<table>
<tr><th>Total</th><td>{{.Counts.Presses}}</td></tr>
{{range .Keys}}<tr><th>{{.Key}}</th><td>{{.Count}}</td></tr>
{{end}}</table>

<h2>Scanning</h2>
<table>
<tr><th>Scans</th><td>{{.Counts.Scans}}</td></tr>
<tr><th>Errors</th><td>{{.Counts.ScanErrors}}</td></tr>
{{if .LastScanError}}<tr><th>Last error</th><td class="error">{{.LastScanError}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{ms .Config.PollMs}}</td></tr>
<tr><th>Heartbeat</th><td>{{ms .Config.HeartbeatMs}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

type keyCount struct {
	Key   string
	Count int
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	keys := make([]keyCount, 0, len(snap.Counts.ByKey))
	for k, n := range snap.Counts.ByKey {
		keys = append(keys, keyCount{Key: string(k), Count: n})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Key < keys[j].Key })

	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Keys   []keyCount
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Keys:     keys,
	}
	indexTmpl.Execute(w, data)
}
