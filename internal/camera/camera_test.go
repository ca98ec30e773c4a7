package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"syscall"
	"testing"
	"time"

	"github.com/smazurov/camkeep/internal/devices"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeHandle struct {
	frames [][]byte
	closed int
}

func (h *fakeHandle) ReadFrame(time.Duration) ([]byte, error) {
	if len(h.frames) == 0 {
		return nil, errors.New("no frame")
	}
	f := h.frames[0]
	h.frames = h.frames[1:]
	return f, nil
}

func (h *fakeHandle) Close() error {
	h.closed++
	return nil
}

// scriptedDriver returns errs[i] for call i, then succeeds. The first silent
// handles it hands out never deliver a frame.
type scriptedDriver struct {
	errs    []error
	silent  int
	calls   int
	handles []*fakeHandle
}

func (d *scriptedDriver) Open(string, Config) (Handle, error) {
	d.calls++
	if d.calls <= len(d.errs) && d.errs[d.calls-1] != nil {
		return nil, d.errs[d.calls-1]
	}
	h := &fakeHandle{frames: [][]byte{{0xff, 0xd8}}}
	if len(d.handles) < d.silent {
		h.frames = nil
	}
	d.handles = append(d.handles, h)
	return h, nil
}

type recordedSleep struct {
	delays []time.Duration
}

func (r *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

type countingProbe struct {
	state devices.State
	calls int
}

func (p *countingProbe) Probe() devices.State {
	p.calls++
	return p.state
}

func passthrough(id string) (string, error) { return id, nil }

func seconds(vals ...int) []time.Duration {
	out := make([]time.Duration, len(vals))
	for i, v := range vals {
		out[i] = time.Duration(v) * time.Second
	}
	return out
}

func equalDurations(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDefaultRetryPolicyDelays(t *testing.T) {
	got := DefaultRetryPolicy().Delays()
	want := seconds(5, 7, 10, 14, 19)
	if !equalDurations(got, want) {
		t.Errorf("Delays() = %v, want %v", got, want)
	}
}

func TestRetryPolicyDelayProperties(t *testing.T) {
	tests := []struct {
		name   string
		policy RetryPolicy
	}{
		{"default", DefaultRetryPolicy()},
		{"slow growth with rounding", RetryPolicy{MaxAttempts: 12, BaseDelay: time.Second, GrowthFactor: 1.05, MaxDelay: 8 * time.Second, Granularity: time.Second}},
		{"clamped", RetryPolicy{MaxAttempts: 10, BaseDelay: 5 * time.Second, GrowthFactor: 2, MaxDelay: 30 * time.Second, Granularity: time.Second}},
		{"exact", RetryPolicy{MaxAttempts: 8, BaseDelay: 100 * time.Millisecond, GrowthFactor: 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delays := tt.policy.Delays()
			for i, d := range delays {
				if tt.policy.MaxDelay > 0 && d > tt.policy.MaxDelay {
					t.Errorf("Delay(%d) = %v exceeds max %v", i, d, tt.policy.MaxDelay)
				}
				if i == 0 {
					continue
				}
				prev := delays[i-1]
				capped := tt.policy.MaxDelay > 0 && prev == tt.policy.MaxDelay
				if !capped && d <= prev {
					t.Errorf("Delay(%d) = %v not greater than Delay(%d) = %v", i, d, i-1, prev)
				}
			}
		})
	}
}

func TestRetryPolicySubSecondBase(t *testing.T) {
	p := DefaultRetryPolicy()
	p.BaseDelay = 300 * time.Millisecond

	want := []time.Duration{
		300 * time.Millisecond,
		420 * time.Millisecond,
		588 * time.Millisecond,
		823200 * time.Microsecond,
		1152480 * time.Microsecond,
	}
	got := p.Delays()
	if len(got) != len(want) {
		t.Fatalf("Delays() = %v, want %d entries", got, len(want))
	}
	for i := range want {
		if diff := got[i] - want[i]; diff < -time.Millisecond || diff > time.Millisecond {
			t.Errorf("Delay(%d) = %v, want ~%v", i, got[i], want[i])
		}
	}
}

func TestRetryPolicyClamp(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 6, BaseDelay: 5 * time.Second, GrowthFactor: 2, MaxDelay: 30 * time.Second, Granularity: time.Second}
	want := seconds(5, 10, 20, 30, 30, 30)
	if got := p.Delays(); !equalDurations(got, want) {
		t.Errorf("Delays() = %v, want %v", got, want)
	}
}

func TestClassifyOpenError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"missing node", fs.ErrNotExist, ErrDeviceAbsent},
		{"enoent errno", syscall.ENOENT, ErrDeviceAbsent},
		{"enodev", syscall.ENODEV, ErrDeviceAbsent},
		{"enxio wrapped", fmt.Errorf("open: %w", syscall.ENXIO), ErrDeviceAbsent},
		{"eacces", syscall.EACCES, ErrPermissionDenied},
		{"permission", fs.ErrPermission, ErrPermissionDenied},
		{"ebusy", syscall.EBUSY, ErrDriverRejected},
		{"format rejected", errors.New("device does not support mjpeg"), ErrDriverRejected},
		{"already classified", NewOpenError(ErrPermissionDenied, "/dev/video0", "x", nil), ErrPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyOpenError("/dev/video0", tt.err)
			if got.Code != tt.want {
				t.Errorf("classifyOpenError(%v) code = %s, want %s", tt.err, got.Code, tt.want)
			}
			if !errors.Is(got, tt.err) && got != tt.err {
				t.Errorf("classified error does not wrap cause")
			}
		})
	}
}

func TestOpenOnce(t *testing.T) {
	driver := &scriptedDriver{errs: []error{syscall.EACCES}}
	o := NewOpener(driver, testLogger(), WithResolver(passthrough))
	cfg := DefaultConfig()

	_, err := o.OpenOnce(context.Background(), cfg)
	if !IsCode(err, ErrPermissionDenied) {
		t.Fatalf("first OpenOnce error = %v, want PERMISSION_DENIED", err)
	}

	s, err := o.OpenOnce(context.Background(), cfg)
	if err != nil {
		t.Fatalf("second OpenOnce error = %v", err)
	}
	if !s.Open() || s.Device != "/dev/video0" || s.ID == "" {
		t.Errorf("session = %+v", s)
	}
}

func TestOpenOnceResolveFailure(t *testing.T) {
	driver := &scriptedDriver{}
	resolve := func(string) (string, error) { return "", fmt.Errorf("no link: %w", fs.ErrNotExist) }
	o := NewOpener(driver, testLogger(), WithResolver(resolve))

	cfg := DefaultConfig()
	cfg.Device = "usb-gone-video-index0"
	_, err := o.OpenOnce(context.Background(), cfg)
	if !IsCode(err, ErrDeviceAbsent) {
		t.Fatalf("error = %v, want DEVICE_ABSENT", err)
	}
	if driver.calls != 0 {
		t.Errorf("driver called %d times after failed resolution", driver.calls)
	}
}

func TestOpenWithRetryAllFail(t *testing.T) {
	absent := make([]error, 5)
	for i := range absent {
		absent[i] = syscall.ENOENT
	}
	driver := &scriptedDriver{errs: absent}
	rec := &recordedSleep{}
	probe := &countingProbe{state: devices.StateAbsent}
	var attempts []Attempt

	o := NewOpener(driver, testLogger(),
		WithResolver(passthrough),
		WithSleep(rec.sleep),
		WithProbe(probe),
		WithAttemptHook(func(a Attempt) { attempts = append(attempts, a) }))

	_, err := o.OpenWithRetry(context.Background(), DefaultConfig(), DefaultRetryPolicy())
	if !IsCode(err, ErrDeviceAbsent) {
		t.Fatalf("error = %v, want DEVICE_ABSENT", err)
	}
	if driver.calls != 5 {
		t.Errorf("driver calls = %d, want 5", driver.calls)
	}
	if want := seconds(5, 7, 10, 14, 19); !equalDurations(rec.delays, want) {
		t.Errorf("delays = %v, want %v", rec.delays, want)
	}
	if probe.calls != 4 {
		t.Errorf("probe calls = %d, want 4 (before every attempt after the first)", probe.calls)
	}
	if len(attempts) != 5 || attempts[0].Probed || !attempts[1].Probed || attempts[4].Number != 5 {
		t.Errorf("attempts = %+v", attempts)
	}
}

func TestOpenWithRetryStopsAtFirstSuccess(t *testing.T) {
	for n := 1; n <= 6; n++ {
		for success := 1; success <= n; success++ {
			t.Run(fmt.Sprintf("max=%d/success=%d", n, success), func(t *testing.T) {
				errs := make([]error, success-1)
				for i := range errs {
					errs[i] = syscall.EBUSY
				}
				driver := &scriptedDriver{errs: errs}
				rec := &recordedSleep{}
				policy := DefaultRetryPolicy()
				policy.MaxAttempts = n

				o := NewOpener(driver, testLogger(), WithResolver(passthrough), WithSleep(rec.sleep))
				s, err := o.OpenWithRetry(context.Background(), DefaultConfig(), policy)
				if err != nil {
					t.Fatalf("error = %v", err)
				}
				if !s.Open() {
					t.Fatal("returned session is not open")
				}
				if driver.calls != success {
					t.Errorf("driver calls = %d, want %d", driver.calls, success)
				}
				if len(rec.delays) != success {
					t.Errorf("sleeps = %d, want %d", len(rec.delays), success)
				}
			})
		}
	}
}

func TestOpenWithRetryNeverExceedsMaxAttempts(t *testing.T) {
	for n := 1; n <= 7; n++ {
		errs := make([]error, 10)
		for i := range errs {
			errs[i] = syscall.EBUSY
		}
		driver := &scriptedDriver{errs: errs}
		rec := &recordedSleep{}
		policy := DefaultRetryPolicy()
		policy.MaxAttempts = n

		o := NewOpener(driver, testLogger(), WithResolver(passthrough), WithSleep(rec.sleep))
		_, err := o.OpenWithRetry(context.Background(), DefaultConfig(), policy)
		if !IsCode(err, ErrDriverRejected) {
			t.Fatalf("max=%d: error = %v, want DRIVER_REJECTED", n, err)
		}
		if driver.calls != n {
			t.Errorf("max=%d: driver calls = %d", n, driver.calls)
		}
	}
}

func TestOpenWithRetryCancelled(t *testing.T) {
	driver := &scriptedDriver{errs: []error{syscall.ENOENT, syscall.ENOENT, syscall.ENOENT}}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	sleep := func(ctx context.Context, d time.Duration) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return ctx.Err()
	}

	o := NewOpener(driver, testLogger(), WithResolver(passthrough), WithSleep(sleep))
	_, err := o.OpenWithRetry(ctx, DefaultConfig(), DefaultRetryPolicy())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if driver.calls != 1 {
		t.Errorf("driver calls = %d, want 1", driver.calls)
	}
}

func TestOpenOnceWarmup(t *testing.T) {
	driver := &scriptedDriver{silent: 1}
	o := NewOpener(driver, testLogger(), WithResolver(passthrough), WithWarmup(time.Second))

	_, err := o.OpenOnce(context.Background(), DefaultConfig())
	if !IsCode(err, ErrDriverRejected) {
		t.Fatalf("silent device error = %v, want DRIVER_REJECTED", err)
	}
	if driver.handles[0].closed != 1 {
		t.Errorf("silent handle closed %d times, want 1", driver.handles[0].closed)
	}

	s, err := o.OpenOnce(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("second OpenOnce error = %v", err)
	}
	if !s.Open() {
		t.Error("session not open after warm-up frame")
	}
}

func TestOpenWithRetrySilentDevice(t *testing.T) {
	tests := []struct {
		name      string
		silent    int
		wantCalls int
		wantErr   bool
	}{
		{"frames on third open", 2, 3, false},
		{"never delivers", 10, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := &scriptedDriver{silent: tt.silent}
			rec := &recordedSleep{}
			o := NewOpener(driver, testLogger(),
				WithResolver(passthrough),
				WithSleep(rec.sleep),
				WithWarmup(time.Second))

			s, err := o.OpenWithRetry(context.Background(), DefaultConfig(), DefaultRetryPolicy())
			if tt.wantErr {
				if !IsCode(err, ErrDriverRejected) {
					t.Fatalf("error = %v, want DRIVER_REJECTED", err)
				}
				if got := AttemptsOf(err); got != tt.wantCalls {
					t.Errorf("AttemptsOf() = %d, want %d", got, tt.wantCalls)
				}
			} else if err != nil || !s.Open() {
				t.Fatalf("OpenWithRetry() = %v, %v", s, err)
			}

			if driver.calls != tt.wantCalls {
				t.Errorf("driver calls = %d, want %d", driver.calls, tt.wantCalls)
			}
			if len(rec.delays) != tt.wantCalls {
				t.Errorf("backoff sleeps = %d, want %d", len(rec.delays), tt.wantCalls)
			}
			for i := 0; i < tt.silent && i < len(driver.handles); i++ {
				if driver.handles[i].closed != 1 {
					t.Errorf("silent handle %d closed %d times, want 1", i, driver.handles[i].closed)
				}
			}
		})
	}
}

func TestAttemptsOfClampedPolicy(t *testing.T) {
	driver := &scriptedDriver{errs: []error{syscall.EBUSY}}
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = 0

	o := NewOpener(driver, testLogger(), WithResolver(passthrough), WithSleep((&recordedSleep{}).sleep))
	_, err := o.OpenWithRetry(context.Background(), DefaultConfig(), policy)
	if got := AttemptsOf(err); got != 1 {
		t.Errorf("AttemptsOf() = %d, want 1", got)
	}
	if AttemptsOf(errors.New("other")) != 0 {
		t.Error("AttemptsOf() on a plain error should be 0")
	}
}

func TestSessionRelease(t *testing.T) {
	h := &fakeHandle{frames: [][]byte{{1}, {}}}
	s := newSession("/dev/video0", DefaultConfig(), h)

	if _, err := s.ReadFrame(time.Second); err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if _, err := s.ReadFrame(time.Second); err == nil {
		t.Fatal("empty frame should fail")
	}

	if err := s.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := s.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
	if h.closed != 1 {
		t.Errorf("handle closed %d times, want 1", h.closed)
	}
	if _, err := s.ReadFrame(time.Second); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("ReadFrame after release error = %v, want ErrSessionClosed", err)
	}

	var nilSession *Session
	if err := nilSession.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep() error = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return promptly on cancel")
	}
}
