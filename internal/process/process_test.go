package process

import (
	"io"
	"log/slog"
	"os"
	"reflect"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr bool
	}{
		{"cat", []string{"cat"}, false},
		{"  python3 detect.py --stdin  ", []string{"python3", "detect.py", "--stdin"}, false},
		{`sh -c "echo hello world"`, []string{"sh", "-c", "echo hello world"}, false},
		{`echo 'it"s'`, []string{"echo", `it"s`}, false},
		{`echo a\ b`, []string{"echo", "a b"}, false},
		{`echo ""`, []string{"echo", ""}, false},
		{"", nil, false},
		{`echo "open`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseCommand(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCommand(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseCommand(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestStdinConsumer(t *testing.T) {
	p := New("test", "cat", testLogger())
	stdin, err := p.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := stdin.Write([]byte("frame\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := p.Start(); err != ErrAlreadyStarted {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}

	if code := p.Stop(); code != 0 {
		t.Errorf("Stop() = %d, want 0 (cat exits on EOF)", code)
	}
	select {
	case <-p.Done():
	default:
		t.Error("Done not closed after Stop")
	}
}

func TestExitCodeReported(t *testing.T) {
	p := New("test", `sh -c "exit 3"`, testLogger())
	if _, err := p.Start(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit")
	}
	if p.ExitCode() != 3 {
		t.Errorf("ExitCode() = %d, want 3", p.ExitCode())
	}
	if code := p.Stop(); code != 3 {
		t.Errorf("Stop() after exit = %d, want 3", code)
	}
}

func TestForceKill(t *testing.T) {
	p := New("test", `sh -c "trap '' INT; while :; do sleep 0.05; done"`, testLogger())
	p.eofTimeout = 50 * time.Millisecond
	p.gracefulTimeout = 100 * time.Millisecond
	p.killTimeout = time.Second
	if _, err := p.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	if code := p.Stop(); code != 137 {
		t.Errorf("Stop() = %d, want 137", code)
	}
}

func TestStartFailure(t *testing.T) {
	tests := []string{"", "/nonexistent/binary", `echo "unterminated`}
	for _, cmd := range tests {
		if _, err := New("test", cmd, testLogger()).Start(); err == nil {
			t.Errorf("Start(%q) succeeded", cmd)
		}
	}
}

func TestStopBeforeStart(t *testing.T) {
	if code := New("test", "cat", testLogger()).Stop(); code != 0 {
		t.Errorf("Stop() = %d, want 0", code)
	}
}

func TestWithEnv(t *testing.T) {
	out := t.TempDir() + "/env.txt"
	p := New("test", `sh -c 'printf %s "$CAMKEEP_UPLOAD_URL" > `+out+`'`, testLogger(),
		WithEnv("CAMKEEP_UPLOAD_URL=https://example.invalid/up"))
	if _, err := p.Start(); err != nil {
		t.Fatal(err)
	}
	<-p.Done()

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "https://example.invalid/up" {
		t.Errorf("child saw %q", data)
	}
}
