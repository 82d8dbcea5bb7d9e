package template

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
)

// SettingsData is what the settings page is rendered with
type SettingsData struct {
	RelayURL   string
	RelayToken string
	Status     string
	Debug      bool
}

// SettingsPage renders the relay settings page served by the control server
type SettingsPage struct {
	tmpl *htmltemplate.Template
}

// NewSettingsPage parses the settings page template
func NewSettingsPage() *SettingsPage {
	return &SettingsPage{
		tmpl: htmltemplate.Must(htmltemplate.New("settings").Parse(settingsHTML)),
	}
}

// Generate returns the page for data as a string
func (p *SettingsPage) Generate(data SettingsData) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render settings page: %w", err)
	}
	return buf.String(), nil
}

const settingsHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Browser Observer - Relay Settings</title>
    <meta charset="UTF-8">
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            max-width: 480px;
            margin: 0 auto;
            padding: 20px;
            background-color: #f5f5f5;
        }
        .container {
            background: white;
            padding: 20px;
            border-radius: 8px;
            box-shadow: 0 2px 10px rgba(0,0,0,0.1);
        }
        label { display: block; margin-top: 12px; font-weight: bold; }
        input {
            width: 100%;
            box-sizing: border-box;
            padding: 8px;
            margin-top: 4px;
            border: 1px solid #ddd;
            border-radius: 4px;
        }
        .status {
            padding: 10px;
            margin: 10px 0;
            border-radius: 4px;
            font-weight: bold;
        }
        .success { background-color: #d4edda; color: #155724; border: 1px solid #c3e6cb; }
        .error { background-color: #f8d7da; color: #721c24; border: 1px solid #f5c6cb; }
        .info { background-color: #d1ecf1; color: #0c5460; border: 1px solid #bee5eb; }
        button {
            background-color: #007bff;
            color: white;
            border: none;
            padding: 10px 20px;
            border-radius: 4px;
            cursor: pointer;
            font-size: 16px;
            margin-top: 16px;
        }
        button:hover { background-color: #0056b3; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Relay Settings</h1>

        <label for="relay-url">Relay URL</label>
        <input id="relay-url" type="url" value="{{.RelayURL}}" placeholder="https://relay.example/events">

        <label for="relay-token">Relay Token (optional)</label>
        <input id="relay-token" type="password" value="{{.RelayToken}}">

        <button id="connect">Connect</button>

        <div id="status" class="status info">{{.Status}}</div>
    </div>

    <script>
        const debug = {{.Debug}};

        function updateStatus(message, type) {
            const statusEl = document.getElementById('status');
            statusEl.textContent = message;
            statusEl.className = 'status ' + type;
        }

        async function refreshStatus() {
            try {
                const res = await fetch('/api/status');
                const status = await res.json();
                if (debug) console.log('Relay status:', status);
                const type = status.state === 'ok' ? 'success'
                    : (status.state === 'unauthorized' || status.state === 'failed') ? 'error' : 'info';
                updateStatus(status.message, type);
            } catch (error) {
                updateStatus('Observer not reachable: ' + error.message, 'error');
            }
        }

        document.getElementById('connect').addEventListener('click', async () => {
            const relayUrl = document.getElementById('relay-url').value.trim();
            const relayToken = document.getElementById('relay-token').value.trim();
            try {
                const res = await fetch('/api/config', {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify({ relayUrl, relayToken }),
                });
                const body = await res.json();
                if (!res.ok) {
                    updateStatus('Error: ' + body.error, 'error');
                    return;
                }
                updateStatus(body.status, 'success');
            } catch (error) {
                updateStatus('Error: ' + error.message, 'error');
            }
        });

        setInterval(refreshStatus, 5000);
    </script>
</body>
</html>`
