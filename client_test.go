package nscache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unkn0wn-root/nscache/codec"
	"github.com/unkn0wn-root/nscache/internal/wire"
	"github.com/unkn0wn-root/nscache/transport"
	"github.com/unkn0wn-root/nscache/transport/local"
)

// recordingLogger captures structured log calls per level.
type recordingLogger struct {
	infos, warns []Fields
}

func (l *recordingLogger) Debug(string, Fields)    {}
func (l *recordingLogger) Info(_ string, f Fields) { l.infos = append(l.infos, f) }
func (l *recordingLogger) Warn(_ string, f Fields) { l.warns = append(l.warns, f) }
func (l *recordingLogger) Error(string, Fields)    {}

// countingTransport counts invocations before delegating.
type countingTransport struct {
	inner transport.Transport
	calls int
}

func (t *countingTransport) Invoke(ctx context.Context, service, method string, req []byte) ([]byte, error) {
	t.calls++
	return t.inner.Invoke(ctx, service, method, req)
}

// flakyTransport fails the first n invocations with a transient error.
type flakyTransport struct {
	inner transport.Transport
	fail  int
	calls int
}

func (t *flakyTransport) Invoke(ctx context.Context, service, method string, req []byte) ([]byte, error) {
	t.calls++
	if t.calls <= t.fail {
		return nil, transport.Unavailable(method, errors.New("connection reset"))
	}
	return t.inner.Invoke(ctx, service, method, req)
}

// errTransport always fails with a fixed error.
type errTransport struct {
	err   error
	calls int
}

func (t *errTransport) Invoke(context.Context, string, string, []byte) ([]byte, error) {
	t.calls++
	return nil, t.err
}

// scriptedTransport answers every call with the same response bytes.
type scriptedTransport struct {
	resp  []byte
	calls int
}

func (t *scriptedTransport) Invoke(context.Context, string, string, []byte) ([]byte, error) {
	t.calls++
	return t.resp, nil
}

func newService(t *testing.T) *local.Service {
	t.Helper()
	s, err := local.New(local.Config{})
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// mustClient builds a client and reaches into the implementation so tests
// can inject the sleep seam.
func mustClient(t *testing.T, opts Options) *client {
	t.Helper()
	cl, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c, ok := cl.(*client)
	if !ok {
		t.Fatalf("unexpected client type %T", cl)
	}
	return c
}

func noSleep(c *client) *[]time.Duration {
	waits := &[]time.Duration{}
	c.sleep = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return waits
}

func encKey(t *testing.T, key any) []byte {
	t.Helper()
	kb, err := codec.EncodeKey(key)
	if err != nil {
		t.Fatalf("EncodeKey(%v): %v", key, err)
	}
	return kb
}

func TestNewRequiresTransport(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("New accepted nil transport")
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c := mustClient(t, Options{Transport: newService(t)})
	ctx := context.Background()

	for _, tc := range []struct {
		name  string
		key   any
		value any
		want  any
	}{
		{"string", "greeting", "hello", "hello"},
		{"int widens to int64", "n", 42, int64(42)},
		{"bool", "flag", true, true},
		{"float", "pi", 3.5, 3.5},
		{"bytes", "raw", []byte{1, 2, 3}, []byte{1, 2, 3}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.Put(ctx, tc.key, tc.value); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, err := c.Get(ctx, tc.key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if b, ok := tc.want.([]byte); ok {
				gb, _ := got.([]byte)
				if string(gb) != string(b) {
					t.Fatalf("Get = %v, want %v", got, tc.want)
				}
				return
			}
			if got != tc.want {
				t.Fatalf("Get = %v (%T), want %v (%T)", got, got, tc.want, tc.want)
			}
		})
	}
}

func TestContainsDistinguishesStoredNil(t *testing.T) {
	c := mustClient(t, Options{Transport: newService(t)})
	ctx := context.Background()

	if _, err := c.Put(ctx, "nothing", nil); err != nil {
		t.Fatalf("Put nil: %v", err)
	}
	v, err := c.Get(ctx, "nothing")
	if err != nil || v != nil {
		t.Fatalf("Get stored nil = %v, %v", v, err)
	}
	if ok, _ := c.Contains(ctx, "nothing"); !ok {
		t.Fatalf("Contains(stored nil) = false")
	}
	if ok, _ := c.Contains(ctx, "absent"); ok {
		t.Fatalf("Contains(absent) = true")
	}
}

func TestGetMiss(t *testing.T) {
	c := mustClient(t, Options{Transport: newService(t)})
	v, err := c.Get(context.Background(), "nope")
	if err != nil || v != nil {
		t.Fatalf("miss = %v, %v", v, err)
	}
}

func TestInvalidKeyNeverReachesTransport(t *testing.T) {
	tr := &countingTransport{inner: newService(t)}
	c := mustClient(t, Options{Transport: tr})
	ctx := context.Background()

	var ik *InvalidKeyError
	if _, err := c.Get(ctx, []int{1}); !errors.As(err, &ik) {
		t.Fatalf("Get with slice key = %v", err)
	}
	if _, err := c.Get(ctx, nil); !errors.As(err, &ik) {
		t.Fatalf("Get with nil key = %v", err)
	}
	if _, err := c.Delete(ctx, map[string]int{}); !errors.As(err, &ik) {
		t.Fatalf("Delete with map key = %v", err)
	}
	if tr.calls != 0 {
		t.Fatalf("transport called %d times for invalid keys", tr.calls)
	}
}

func TestGetMultiEmptyShortCircuits(t *testing.T) {
	tr := &countingTransport{inner: newService(t)}
	c := mustClient(t, Options{Transport: tr})

	got, err := c.GetMulti(context.Background(), []any{})
	if err != nil {
		t.Fatalf("GetMulti(empty): %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("GetMulti(empty) = %v", got)
	}
	if tr.calls != 0 {
		t.Fatalf("empty batch reached the transport (%d calls)", tr.calls)
	}
}

func TestNilBatchArguments(t *testing.T) {
	c := mustClient(t, Options{Transport: newService(t)})
	ctx := context.Background()

	if _, err := c.GetMulti(ctx, nil); !errors.Is(err, ErrNilKeys) {
		t.Fatalf("GetMulti(nil) = %v", err)
	}
	if _, err := c.DeleteMulti(ctx, nil); !errors.Is(err, ErrNilKeys) {
		t.Fatalf("DeleteMulti(nil) = %v", err)
	}
	if _, err := c.IncrementMulti(ctx, nil, 1); !errors.Is(err, ErrNilKeys) {
		t.Fatalf("IncrementMulti(nil) = %v", err)
	}
	if _, err := c.PutMulti(ctx, nil); !errors.Is(err, ErrNilValues) {
		t.Fatalf("PutMulti(nil) = %v", err)
	}
	if _, err := c.IncrementOffsets(ctx, nil); !errors.Is(err, ErrNilOffsets) {
		t.Fatalf("IncrementOffsets(nil) = %v", err)
	}
}

func TestGetMultiReturnsOnlyRequestedKeys(t *testing.T) {
	c := mustClient(t, Options{Transport: newService(t)})
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		if _, err := c.Put(ctx, k, "v:"+k); err != nil {
			t.Fatalf("Put %q: %v", k, err)
		}
	}
	got, err := c.GetMulti(ctx, []any{"a", "b", "missing", "a"})
	if err != nil {
		t.Fatalf("GetMulti: %v", err)
	}
	if len(got) != 2 || got["a"] != "v:a" || got["b"] != "v:b" {
		t.Fatalf("GetMulti = %v", got)
	}
}

func TestGetMultiDropsUnrequestedResponseKeys(t *testing.T) {
	resp, err := wire.Marshal(&wire.GetResponse{Items: []wire.Item{
		{Key: encKey(t, "asked"), Value: []byte("yes"), Flags: codec.FlagUTF8},
		{Key: encKey(t, "sneaky"), Value: []byte("no"), Flags: codec.FlagUTF8},
	}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	c := mustClient(t, Options{Transport: &scriptedTransport{resp: resp}})

	got, err := c.GetMulti(context.Background(), []any{"asked"})
	if err != nil {
		t.Fatalf("GetMulti: %v", err)
	}
	if len(got) != 1 || got["asked"] != "yes" {
		t.Fatalf("GetMulti = %v", got)
	}
}

func TestTransientFailuresAreRetried(t *testing.T) {
	tr := &flakyTransport{inner: newService(t)}
	log := &recordingLogger{}
	c := mustClient(t, Options{Transport: tr, Logger: log})
	waits := noSleep(c)
	ctx := context.Background()

	if _, err := c.Put(ctx, "k", "v"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	tr.calls, tr.fail = 0, 3

	v, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get after transient failures: %v", err)
	}
	if v != "v" {
		t.Fatalf("Get = %v", v)
	}
	if tr.calls != 4 {
		t.Fatalf("transport calls = %d, want 4", tr.calls)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	if len(*waits) != len(want) {
		t.Fatalf("waits = %v", *waits)
	}
	for i, w := range want {
		if (*waits)[i] != w {
			t.Fatalf("wait[%d] = %v, want %v", i, (*waits)[i], w)
		}
	}
	if len(log.infos) != 3 {
		t.Fatalf("retry log entries = %d, want 3", len(log.infos))
	}
}

func TestRetryBudgetExhaustedSurfacesLastError(t *testing.T) {
	cause := errors.New("backend down")
	tr := &errTransport{err: transport.Unavailable(wire.MethodGet, cause)}
	c := mustClient(t, Options{Transport: tr})
	waits := noSleep(c)

	_, err := c.Get(context.Background(), "k")
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("error = %T %v, want *ServiceError", err, err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("root cause unreachable: %v", err)
	}
	if tr.calls != 10 {
		t.Fatalf("transport calls = %d, want 10", tr.calls)
	}
	// the loop sleeps after the last failed attempt too
	if len(*waits) != 10 {
		t.Fatalf("sleeps = %d, want 10", len(*waits))
	}
	if (*waits)[9] != 51200*time.Millisecond {
		t.Fatalf("final wait = %v", (*waits)[9])
	}
}

func TestCapabilityDisabledBypassesRetryAndHandler(t *testing.T) {
	tr := &errTransport{err: transport.CapabilityDisabled(wire.MethodSet, "maintenance")}
	log := &recordingLogger{}
	c := mustClient(t, Options{
		Transport:    tr,
		ErrorHandler: LenientErrorHandler{Logger: log},
	})
	waits := noSleep(c)

	_, err := c.Put(context.Background(), "k", "v")
	if !transport.IsCapabilityDisabled(err) {
		t.Fatalf("error = %v, want capability-disabled", err)
	}
	if tr.calls != 1 {
		t.Fatalf("transport calls = %d, want 1", tr.calls)
	}
	if len(*waits) != 0 {
		t.Fatalf("capability-disabled failure slept %v", *waits)
	}
	// the lenient handler must not have been consulted
	if len(log.warns) != 0 {
		t.Fatalf("handler saw the error: %v", log.warns)
	}
}

func TestIncrementIsNeverRetried(t *testing.T) {
	tr := &errTransport{err: transport.Unavailable(wire.MethodIncrement, errors.New("timeout"))}
	c := mustClient(t, Options{Transport: tr})
	waits := noSleep(c)
	ctx := context.Background()

	if _, _, err := c.Increment(ctx, "c", 1); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := c.IncrementMulti(ctx, []any{"a", "b"}, 1); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := c.IncrementOffsets(ctx, map[any]int64{"a": 1}); err == nil {
		t.Fatalf("expected error")
	}
	if tr.calls != 3 {
		t.Fatalf("transport calls = %d, want 3 (one per operation)", tr.calls)
	}
	if len(*waits) != 0 {
		t.Fatalf("increment slept %v", *waits)
	}
}

func TestIncrementFamily(t *testing.T) {
	c := mustClient(t, Options{Transport: newService(t)})
	ctx := context.Background()

	t.Run("absent without initial", func(t *testing.T) {
		_, ok, err := c.Increment(ctx, "cnt", 5)
		if err != nil || ok {
			t.Fatalf("= ok=%v err=%v", ok, err)
		}
	})

	t.Run("initial stored without delta", func(t *testing.T) {
		v, ok, err := c.Increment(ctx, "cnt", 5, WithInitialValue(100))
		if err != nil || !ok || v != 100 {
			t.Fatalf("= %d ok=%v err=%v", v, ok, err)
		}
		v, ok, _ = c.Increment(ctx, "cnt", 5)
		if !ok || v != 105 {
			t.Fatalf("second increment = %d ok=%v", v, ok)
		}
	})

	t.Run("decrement floors at zero", func(t *testing.T) {
		v, ok, err := c.Increment(ctx, "cnt", -1000)
		if err != nil || !ok || v != 0 {
			t.Fatalf("= %d ok=%v err=%v", v, ok, err)
		}
	})

	t.Run("non-numeric value", func(t *testing.T) {
		if _, err := c.Put(ctx, "text", "abc"); err != nil {
			t.Fatal(err)
		}
		_, ok, err := c.Increment(ctx, "text", 1)
		if err != nil || ok {
			t.Fatalf("= ok=%v err=%v", ok, err)
		}
	})

	t.Run("increment preserves numeric puts", func(t *testing.T) {
		if _, err := c.Put(ctx, "n", 41); err != nil {
			t.Fatal(err)
		}
		v, ok, _ := c.Increment(ctx, "n", 1)
		if !ok || v != 42 {
			t.Fatalf("= %d ok=%v", v, ok)
		}
		got, err := c.Get(ctx, "n")
		if err != nil || got != int64(42) {
			t.Fatalf("Get after increment = %v, %v", got, err)
		}
	})

	t.Run("offsets with shared initial", func(t *testing.T) {
		got, err := c.IncrementOffsets(ctx, map[any]int64{"x": 1, "y": 2}, WithInitialValue(10))
		if err != nil {
			t.Fatalf("IncrementOffsets: %v", err)
		}
		if got["x"] != 10 || got["y"] != 10 {
			t.Fatalf("first offsets = %v", got)
		}
		got, err = c.IncrementOffsets(ctx, map[any]int64{"x": 1, "y": 2})
		if err != nil {
			t.Fatalf("IncrementOffsets: %v", err)
		}
		if got["x"] != 11 || got["y"] != 12 {
			t.Fatalf("second offsets = %v", got)
		}
	})

	t.Run("multi skips failed keys", func(t *testing.T) {
		got, err := c.IncrementMulti(ctx, []any{"n", "text", "ghost"}, 1)
		if err != nil {
			t.Fatalf("IncrementMulti: %v", err)
		}
		if len(got) != 1 || got["n"] != 43 {
			t.Fatalf("IncrementMulti = %v", got)
		}
	})
}

func TestPutPolicies(t *testing.T) {
	c := mustClient(t, Options{Transport: newService(t)})
	ctx := context.Background()

	if ok, _ := c.Put(ctx, "k", "v1", WithPolicy(AddOnlyIfNotPresent)); !ok {
		t.Fatalf("add-only on absent key not stored")
	}
	if ok, _ := c.Put(ctx, "k", "v2", WithPolicy(AddOnlyIfNotPresent)); ok {
		t.Fatalf("add-only overwrote an existing key")
	}
	if ok, _ := c.Put(ctx, "k", "v3", WithPolicy(ReplaceOnlyIfPresent)); !ok {
		t.Fatalf("replace-only on existing key not stored")
	}
	if ok, _ := c.Put(ctx, "ghost", "v", WithPolicy(ReplaceOnlyIfPresent)); ok {
		t.Fatalf("replace-only created a key")
	}
	if v, _ := c.Get(ctx, "k"); v != "v3" {
		t.Fatalf("final value = %v", v)
	}
}

func TestPutMultiReportsStoredKeys(t *testing.T) {
	c := mustClient(t, Options{Transport: newService(t)})
	ctx := context.Background()

	if _, err := c.Put(ctx, "taken", "old"); err != nil {
		t.Fatal(err)
	}
	stored, err := c.PutMulti(ctx, map[any]any{"taken": "new", "fresh": "v"},
		WithPolicy(AddOnlyIfNotPresent))
	if err != nil {
		t.Fatalf("PutMulti: %v", err)
	}
	if len(stored) != 1 || stored[0] != "fresh" {
		t.Fatalf("stored = %v", stored)
	}
}

func TestDeleteMultiReportsExistingKeys(t *testing.T) {
	c := mustClient(t, Options{Transport: newService(t)})
	ctx := context.Background()

	if _, err := c.Put(ctx, "a", 1); err != nil {
		t.Fatal(err)
	}
	deleted, err := c.DeleteMulti(ctx, []any{"a", "ghost"})
	if err != nil {
		t.Fatalf("DeleteMulti: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != "a" {
		t.Fatalf("deleted = %v", deleted)
	}
}

func TestDeleteWithNoReaddBlocksAddOnly(t *testing.T) {
	c := mustClient(t, Options{Transport: newService(t)})
	ctx := context.Background()

	if _, err := c.Put(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	if existed, _ := c.Delete(ctx, "k", WithNoReadd(time.Minute)); !existed {
		t.Fatalf("Delete reported missing key")
	}
	if ok, _ := c.Put(ctx, "k", "v", WithPolicy(AddOnlyIfNotPresent)); ok {
		t.Fatalf("add-only succeeded inside no-readd window")
	}
	if ok, _ := c.Put(ctx, "k", "v"); !ok {
		t.Fatalf("unconditional put blocked by no-readd window")
	}
}

func TestLenientHandlerDegradesToMiss(t *testing.T) {
	tr := &errTransport{err: transport.Unavailable(wire.MethodGet, errors.New("down"))}
	log := &recordingLogger{}
	c := mustClient(t, Options{
		Transport:    tr,
		ErrorHandler: LenientErrorHandler{Logger: log},
	})
	waits := noSleep(c)
	ctx := context.Background()

	v, err := c.Get(ctx, "k")
	if err != nil || v != nil {
		t.Fatalf("lenient Get = %v, %v", v, err)
	}
	got, err := c.GetMulti(ctx, []any{"a"})
	if err != nil || len(got) != 0 {
		t.Fatalf("lenient GetMulti = %v, %v", got, err)
	}
	// swallowed errors are not retried: the attempt "succeeded"
	if tr.calls != 2 {
		t.Fatalf("transport calls = %d, want 2", tr.calls)
	}
	if len(*waits) != 0 {
		t.Fatalf("lenient path slept %v", *waits)
	}
	if len(log.warns) != 2 {
		t.Fatalf("warn entries = %d, want 2", len(log.warns))
	}
}

func badFlagResponse(t *testing.T) []byte {
	t.Helper()
	resp, err := wire.Marshal(&wire.GetResponse{Items: []wire.Item{
		{Key: encKey(t, "good"), Value: []byte("fine"), Flags: codec.FlagUTF8},
		{Key: encKey(t, "bad"), Value: []byte{0x01}, Flags: 0xBEEF},
	}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return resp
}

func TestStrictHandlerRaisesDeserializationError(t *testing.T) {
	tr := &scriptedTransport{resp: badFlagResponse(t)}
	c := mustClient(t, Options{Transport: tr})
	noSleep(c)

	_, err := c.GetMulti(context.Background(), []any{"good", "bad"})
	var de *DeserializationError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *DeserializationError", err)
	}
	// decode failures are not transient
	if tr.calls != 1 {
		t.Fatalf("transport calls = %d, want 1", tr.calls)
	}
}

func TestLenientHandlerSkipsUndecodableEntry(t *testing.T) {
	log := &recordingLogger{}
	c := mustClient(t, Options{
		Transport:    &scriptedTransport{resp: badFlagResponse(t)},
		ErrorHandler: LenientErrorHandler{Logger: log},
	})

	got, err := c.GetMulti(context.Background(), []any{"good", "bad"})
	if err != nil {
		t.Fatalf("GetMulti: %v", err)
	}
	if len(got) != 1 || got["good"] != "fine" {
		t.Fatalf("GetMulti = %v", got)
	}
	if len(log.warns) != 1 {
		t.Fatalf("warn entries = %d, want 1", len(log.warns))
	}
}

func TestMalformedValueIsFatalEvenWhenLenient(t *testing.T) {
	resp, err := wire.Marshal(&wire.GetResponse{Items: []wire.Item{
		{Key: encKey(t, "k"), Value: []byte("not-a-number"), Flags: codec.FlagInt},
	}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	c := mustClient(t, Options{
		Transport:    &scriptedTransport{resp: resp},
		ErrorHandler: LenientErrorHandler{},
	})
	noSleep(c)

	_, err = c.Get(context.Background(), "k")
	var mv *MalformedValueError
	if !errors.As(err, &mv) {
		t.Fatalf("error = %v, want *MalformedValueError", err)
	}
}

func TestNamespaceIsolation(t *testing.T) {
	svc := newService(t)
	base := mustClient(t, Options{Transport: svc, Namespace: "users"})
	other := base.WithNamespace("orders")
	ctx := context.Background()

	if base.Namespace() != "users" || other.Namespace() != "orders" {
		t.Fatalf("namespaces = %q, %q", base.Namespace(), other.Namespace())
	}

	if _, err := base.Put(ctx, "id", "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := other.Put(ctx, "id", "order-7"); err != nil {
		t.Fatal(err)
	}
	if v, _ := base.Get(ctx, "id"); v != "alice" {
		t.Fatalf("users/id = %v", v)
	}
	if v, _ := other.Get(ctx, "id"); v != "order-7" {
		t.Fatalf("orders/id = %v", v)
	}
}

func TestWithErrorHandlerDerivation(t *testing.T) {
	c := mustClient(t, Options{Transport: newService(t)})

	if _, ok := c.ErrorHandler().(StrictErrorHandler); !ok {
		t.Fatalf("default handler = %T", c.ErrorHandler())
	}
	lenient := c.WithErrorHandler(LenientErrorHandler{})
	if _, ok := lenient.ErrorHandler().(LenientErrorHandler); !ok {
		t.Fatalf("derived handler = %T", lenient.ErrorHandler())
	}
	// derivation leaves the source instance untouched
	if _, ok := c.ErrorHandler().(StrictErrorHandler); !ok {
		t.Fatalf("source handler mutated to %T", c.ErrorHandler())
	}
	// nil falls back to strict
	if _, ok := c.WithErrorHandler(nil).ErrorHandler().(StrictErrorHandler); !ok {
		t.Fatalf("nil handler did not fall back to strict")
	}
}

func TestFlushAllCrossesNamespaces(t *testing.T) {
	svc := newService(t)
	users := mustClient(t, Options{Transport: svc, Namespace: "users"})
	orders := users.WithNamespace("orders")
	ctx := context.Background()

	if _, err := users.Put(ctx, "k", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := orders.Put(ctx, "k", 2); err != nil {
		t.Fatal(err)
	}
	if err := users.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	if ok, _ := users.Contains(ctx, "k"); ok {
		t.Fatalf("users entry survived flush")
	}
	if ok, _ := orders.Contains(ctx, "k"); ok {
		t.Fatalf("orders entry survived flush")
	}
}

func TestStats(t *testing.T) {
	c := mustClient(t, Options{Transport: newService(t)})
	ctx := context.Background()

	if _, err := c.Put(ctx, "k", "value"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "miss"); err != nil {
		t.Fatal(err)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Items != 1 || stats.Bytes == 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestRetryTuning(t *testing.T) {
	tr := &errTransport{err: transport.Unavailable(wire.MethodGet, errors.New("down"))}
	c := mustClient(t, Options{
		Transport:        tr,
		RetryInitialWait: 10 * time.Millisecond,
		RetryMultiplier:  3,
		RetryMaxAttempts: 2,
	})
	waits := noSleep(c)

	if _, err := c.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected error")
	}
	if tr.calls != 2 {
		t.Fatalf("transport calls = %d, want 2", tr.calls)
	}
	if len(*waits) != 2 || (*waits)[0] != 10*time.Millisecond || (*waits)[1] != 30*time.Millisecond {
		t.Fatalf("waits = %v", *waits)
	}
}
