package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/step-sensor/internal/mqtt"
	"github.com/sweeney/step-sensor/internal/status"
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
	"hz": func(f float64) string {
		return fmt.Sprintf("%.2f Hz", f)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Step Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.steps { font-size: 3em; font-weight: bold; margin: 0.3em 0; }
.active { color: green; font-weight: bold; }
.inactive { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Step Sensor{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<div id="steps" class="steps">{{.Displayed}}</div>
{{if .Controls}}<p>
<button onclick="send('/reset')">Reset</button>
<button onclick="send('/activate')">Activate</button>
<button onclick="send('/deactivate')">Deactivate</button>
</p>{{end}}

<h2>Pipeline</h2>
<table>
<tr><th>Phase</th><td id="phase" class="{{if eq (printf "%s" .Phase) "INACTIVE"}}inactive{{else}}active{{end}}">{{.Phase}}</td></tr>
<tr><th>Buffered</th><td>{{.Buffered}} / {{.Config.WindowSize}}</td></tr>
<tr><th>Running total</th><td id="running-total">{{.RunningTotal}}</td></tr>
<tr><th>Baseline</th><td id="baseline">{{.Baseline}}</td></tr>
{{with .LastWindow}}<tr><th>Last window</th><td id="last-window">{{.Spectrum.Steps}} steps at {{hz .Spectrum.FrequencyHz}} (bin {{.Spectrum.DominantBin}})</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Samples</th><td>{{.Counts.Samples}}</td></tr>
<tr><th>Windows</th><td>{{.Counts.Windows}}</td></tr>
<tr><th>Windows with steps</th><td>{{.Counts.StepWindows}}</td></tr>
<tr><th>Resets</th><td>{{.Counts.Resets}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Source</th><td>{{.Config.Source}} @ {{.Config.SampleRateHz}} Hz</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Controls}}
<script>
function send(path) {
  fetch(path, { method: "POST" }).then(function() { location.reload(); });
}
</script>
{{end}}
{{if .Config.WSBroker}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "{{.EventsTopic}}";
  var dot = document.getElementById("live-dot");
  var stepsEl = document.getElementById("steps");
  var totalEl = document.getElementById("running-total");
  var baselineEl = document.getElementById("baseline");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (msg.steps) {
        stepsEl.textContent = msg.steps.displayed;
        totalEl.textContent = msg.steps.running_total;
        baselineEl.textContent = msg.steps.baseline;
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, controls bool) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime      time.Duration
		Controls    bool
		EventsTopic string
	}{
		Snapshot:    snap,
		Uptime:      snap.Uptime(),
		Controls:    controls,
		EventsTopic: mqtt.NewTopics(snap.Config.TopicPrefix).Events,
	}
	return indexTmpl.Execute(w, data)
}
