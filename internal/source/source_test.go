package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranshuparmar/witl/pkg/model"
)

func TestDetectSupervisor(t *testing.T) {
	tests := []struct {
		name     string
		ancestry []model.Process
		want     string
		respawns bool
	}{
		{
			name: "supervisord under python",
			ancestry: []model.Process{
				{PID: 1, Command: "systemd"},
				{PID: 300, Command: "python3", Cmdline: "/usr/bin/python3 /usr/bin/supervisord -n"},
				{PID: 310, Command: "worker"},
			},
			want:     "supervisord",
			respawns: true,
		},
		{
			name: "pm2 daemon",
			ancestry: []model.Process{
				{PID: 1, Command: "launchd"},
				{PID: 80, Command: "PM2 v5.3.0: God Daemon"},
				{PID: 81, Command: "node"},
			},
			want:     "pm2",
			respawns: true,
		},
		{
			name: "tini does not respawn",
			ancestry: []model.Process{
				{PID: 1, Command: "tini"},
				{PID: 7, PPID: 1, Command: "tini"},
				{PID: 8, PPID: 7, Command: "app"},
			},
			want: "tini",
		},
		{
			name: "init alone is ignored",
			ancestry: []model.Process{
				{PID: 1, Command: "systemd"},
				{PID: 20, Command: "vim"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectSupervisor(tt.ancestry)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, model.SourceSupervisor, got.Type)
			assert.Equal(t, tt.want, got.Name)
			assert.Equal(t, tt.respawns, got.Respawns)
		})
	}
}

func TestDetectShellPicksClosest(t *testing.T) {
	got := detectShell([]model.Process{
		{PID: 1, Command: "init"},
		{PID: 2, Command: "zsh"},
		{PID: 3, Command: "bash"},
		{PID: 4, Command: "less"},
	})
	require.NotNil(t, got)
	assert.Equal(t, "bash", got.Name)
	assert.False(t, got.Respawns)
}

func TestWarnings(t *testing.T) {
	assert.Empty(t, Warnings(nil, model.Process{AppType: "process"}))
	assert.Empty(t, Warnings(&model.Source{Type: model.SourceShell, Name: "bash"}, model.Process{}))

	w := Warnings(&model.Source{Type: model.SourceSystemd, Name: "nginx.service", Respawns: true}, model.Process{})
	require.Len(t, w, 1)
	assert.Contains(t, w[0], "nginx.service")

	assert.Len(t, Warnings(nil, model.Process{AppType: "service"}), 1)
	assert.Len(t, Warnings(nil, model.Process{AppType: "critical"}), 1)
}

func TestParseBlame(t *testing.T) {
	tests := []struct {
		out    string
		domain string
		label  string
		ok     bool
	}{
		{"system/com.apple.mds\n", "system", "com.apple.mds", true},
		{"gui/501/com.example.sync\n", "gui/501", "com.example.sync", true},
		{"speculative\n", "", "", false},
		{"ipc (mach)\n", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		domain, label, ok := parseBlame(tt.out)
		assert.Equal(t, tt.ok, ok, tt.out)
		if ok {
			assert.Equal(t, tt.domain, domain)
			assert.Equal(t, tt.label, label)
		}
	}
}

func TestKeepAlive(t *testing.T) {
	const head = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0"><dict><key>Label</key><string>com.example.sync</string>`

	tests := []struct {
		name string
		body string
		want bool
	}{
		{"true", `<key>KeepAlive</key><true/>`, true},
		{"false", `<key>KeepAlive</key><false/>`, false},
		{"dict", `<key>KeepAlive</key><dict><key>SuccessfulExit</key><false/></dict>`, true},
		{"absent", `<key>RunAtLoad</key><true/>`, false},
		{"nested key ignored", `<key>Sockets</key><dict><key>KeepAlive</key><true/></dict>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := keepAlive([]byte(head + tt.body + `</dict></plist>`))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
