package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"golang.org/x/net/html"

	"github.com/hitoshi/eventrsvp/internal/config"
	"github.com/hitoshi/eventrsvp/internal/model"
	"github.com/hitoshi/eventrsvp/internal/security"
)

// --- テスト用モック ---

type mockMailer struct {
	mu       sync.Mutex
	sent     []*mail.SGMailV3
	sendFunc func(ctx context.Context, m *mail.SGMailV3) error
}

func (m *mockMailer) Send(ctx context.Context, msg *mail.SGMailV3) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	if m.sendFunc != nil {
		return m.sendFunc(ctx, msg)
	}
	return nil
}

// byRecipient は宛先アドレスで送信済みメールを引く。
func (m *mockMailer) byRecipient(addr string) *mail.SGMailV3 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.sent {
		for _, p := range msg.Personalizations {
			for _, to := range p.To {
				if to.Address == addr {
					return msg
				}
			}
		}
	}
	return nil
}

type notification struct {
	kind string
	ok   bool
}

type mockMetrics struct {
	mu            sync.Mutex
	notifications []notification
}

func (m *mockMetrics) RecordSubmission(string)                {}
func (m *mockMetrics) RecordVerification(bool, time.Duration) {}
func (m *mockMetrics) RecordExport(int)                       {}
func (m *mockMetrics) RecordHTTPStatus(int)                   {}
func (m *mockMetrics) RecordNotification(kind string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, notification{kind, ok})
}

func (m *mockMetrics) has(kind string, ok bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifications {
		if n.kind == kind && n.ok == ok {
			return true
		}
	}
	return false
}

type stubValidator struct{ err error }

func (s stubValidator) ValidateURL(string) error { return s.err }

// --- ヘルパー ---

func testEvent(t *testing.T) config.EventConfig {
	t.Helper()
	loc, err := time.LoadLocation("America/Detroit")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	return config.EventConfig{
		Slug:     "piedmont-2025-11-19",
		Name:     "Piedmont Wine Dinner",
		Brand:    "160 Main",
		Location: "160 Main, Northville, MI",
		Start:    time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 11, 20, 2, 0, 0, 0, time.UTC),
		TimeZone: loc,
		LogoURL:  "https://example.com/logo.png",
	}
}

func testRecord() *model.RSVPRecord {
	return &model.RSVPRecord{
		ID:          "rsvp-1",
		CreatedAt:   time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC),
		EventSlug:   "piedmont-2025-11-19",
		FirstName:   "Ana",
		LastName:    "Lee",
		Phone:       "555-0100",
		Email:       "ana@example.com",
		WillAttend:  "yes",
		UTMSource:   "newsletter",
		UTMMedium:   "email",
		UTMCampaign: "fall",
	}
}

func newTestDispatcher(t *testing.T, mailer Mailer, mc *mockMetrics, buf *bytes.Buffer) *Dispatcher {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewDispatcher(mailer, security.NewEmailSanitizer(), stubValidator{}, mc, logger, Options{
		FromEmail:  "events@example.com",
		FromName:   "160 Main Events",
		InternalTo: "staff@example.com",
		Timeout:    time.Second,
		Event:      testEvent(t),
	})
}

func contentOf(m *mail.SGMailV3, typ string) string {
	for _, c := range m.Content {
		if c.Type == typ {
			return c.Value
		}
	}
	return ""
}

// --- テスト ---

func TestNotify_SendsGuestAndInternalMail(t *testing.T) {
	mailer := &mockMailer{}
	mc := &mockMetrics{}
	var buf bytes.Buffer
	d := newTestDispatcher(t, mailer, mc, &buf)

	d.Notify(context.Background(), testRecord())

	if len(mailer.sent) != 2 {
		t.Fatalf("送信数 = %d, want 2", len(mailer.sent))
	}

	guest := mailer.byRecipient("ana@example.com")
	if guest == nil {
		t.Fatal("回答者向けメールが送信されていない")
	}
	if guest.Subject != "160 Main — RSVP Confirmed — Piedmont Wine Dinner" {
		t.Errorf("guest subject = %q", guest.Subject)
	}
	if guest.From.Address != "events@example.com" || guest.From.Name != "160 Main Events" {
		t.Errorf("from = %+v", guest.From)
	}
	text := contentOf(guest, "text/plain")
	if !strings.Contains(text, "Hi Ana,") || !strings.Contains(text, "look forward to seeing you") {
		t.Errorf("guest text = %q", text)
	}
	if !strings.Contains(text, "Date: Wed Nov 19 at 7:00 PM") {
		t.Errorf("開催日時がイベントのタイムゾーンで表記されていない: %q", text)
	}
	if contentOf(guest, "text/html") == "" {
		t.Error("guest mail should have an HTML part")
	}

	internal := mailer.byRecipient("staff@example.com")
	if internal == nil {
		t.Fatal("主催者向けメールが送信されていない")
	}
	if internal.Subject != "New RSVP — Piedmont Wine Dinner" {
		t.Errorf("internal subject = %q", internal.Subject)
	}
	itext := contentOf(internal, "text/plain")
	for _, want := range []string{"Ana Lee", "ana@example.com", "555-0100", "Attend: yes", "Notes: (none)", "UTM: newsletter/email/fall"} {
		if !strings.Contains(itext, want) {
			t.Errorf("internal text should contain %q, got %q", want, itext)
		}
	}

	if !mc.has(KindGuest, true) || !mc.has(KindInternal, true) {
		t.Errorf("metrics = %+v, want success for both kinds", mc.notifications)
	}
}

func TestNotify_NotAttending_UsesReceivedWording(t *testing.T) {
	mailer := &mockMailer{}
	var buf bytes.Buffer
	d := newTestDispatcher(t, mailer, &mockMetrics{}, &buf)

	rec := testRecord()
	rec.WillAttend = "no"
	d.Notify(context.Background(), rec)

	guest := mailer.byRecipient("ana@example.com")
	if guest == nil {
		t.Fatal("回答者向けメールが送信されていない")
	}
	if guest.Subject != "160 Main — RSVP Received — Piedmont Wine Dinner" {
		t.Errorf("subject = %q", guest.Subject)
	}
	if text := contentOf(guest, "text/plain"); !strings.Contains(text, "received your response") {
		t.Errorf("text = %q", text)
	}
}

func TestNotify_Disabled_SendsNothing(t *testing.T) {
	mc := &mockMetrics{}
	var buf bytes.Buffer
	d := newTestDispatcher(t, nil, mc, &buf)

	if d.Enabled() {
		t.Error("Enabled() = true, want false without mailer")
	}
	d.Notify(context.Background(), testRecord())

	if len(mc.notifications) != 0 {
		t.Errorf("metrics = %+v, want none", mc.notifications)
	}
}

func TestNotify_EscapesUserInputInHTML(t *testing.T) {
	mailer := &mockMailer{}
	var buf bytes.Buffer
	d := newTestDispatcher(t, mailer, &mockMetrics{}, &buf)

	rec := testRecord()
	rec.FirstName = `<img src=x onerror="alert(1)">`
	rec.Notes = `<script>alert('x')</script> & "friends"`
	d.Notify(context.Background(), rec)

	for _, addr := range []string{"ana@example.com", "staff@example.com"} {
		m := mailer.byRecipient(addr)
		if m == nil {
			t.Fatalf("%s 宛のメールがない", addr)
		}
		body := contentOf(m, "text/html")

		doc, err := html.Parse(strings.NewReader(body))
		if err != nil {
			t.Fatalf("html.Parse: %v", err)
		}

		var text strings.Builder
		var walk func(n *html.Node)
		walk = func(n *html.Node) {
			if n.Type == html.ElementNode {
				if n.Data == "script" {
					t.Errorf("%s: script要素が含まれている", addr)
				}
				for _, a := range n.Attr {
					if strings.HasPrefix(a.Key, "on") {
						t.Errorf("%s: イベント属性 %s が含まれている", addr, a.Key)
					}
				}
			}
			if n.Type == html.TextNode {
				text.WriteString(n.Data)
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(doc)

		// エスケープされた入力はテキストとして残る
		if !strings.Contains(text.String(), `<script>alert('x')</script> & "friends"`) {
			t.Errorf("%s: notes should survive as text, got %q", addr, text.String())
		}
	}
}

func TestNotify_OneFailureDoesNotBlockTheOther(t *testing.T) {
	mailer := &mockMailer{
		sendFunc: func(ctx context.Context, m *mail.SGMailV3) error {
			if m.Personalizations[0].To[0].Address == "ana@example.com" {
				return errors.New("sendgrid: 500")
			}
			return nil
		},
	}
	mc := &mockMetrics{}
	var buf bytes.Buffer
	d := newTestDispatcher(t, mailer, mc, &buf)

	d.Notify(context.Background(), testRecord())

	if len(mailer.sent) != 2 {
		t.Fatalf("送信試行数 = %d, want 2", len(mailer.sent))
	}
	if !mc.has(KindGuest, false) {
		t.Error("guest failure should be recorded")
	}
	if !mc.has(KindInternal, true) {
		t.Error("internal success should be recorded")
	}
	if !strings.Contains(buf.String(), "通知メールの送信に失敗しました") {
		t.Errorf("failure should be logged, got %s", buf.String())
	}
}

func TestNotify_BoundedByTimeout(t *testing.T) {
	mailer := &mockMailer{
		sendFunc: func(ctx context.Context, m *mail.SGMailV3) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	mc := &mockMetrics{}
	var buf bytes.Buffer
	d := newTestDispatcher(t, mailer, mc, &buf)
	d.opts.Timeout = 50 * time.Millisecond

	start := time.Now()
	d.Notify(context.Background(), testRecord())
	elapsed := time.Since(start)

	// 2通は並行に送るので合計はおおよそ1回分のタイムアウトに収まる
	if elapsed > 500*time.Millisecond {
		t.Errorf("Notify took %v, want bounded by timeout", elapsed)
	}
	if !mc.has(KindGuest, false) || !mc.has(KindInternal, false) {
		t.Errorf("metrics = %+v, want failures for both kinds", mc.notifications)
	}
}

func TestNotify_IgnoresCallerCancellation(t *testing.T) {
	mailer := &mockMailer{
		sendFunc: func(ctx context.Context, m *mail.SGMailV3) error {
			return ctx.Err()
		},
	}
	mc := &mockMetrics{}
	var buf bytes.Buffer
	d := newTestDispatcher(t, mailer, mc, &buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Notify(ctx, testRecord())

	if !mc.has(KindGuest, true) || !mc.has(KindInternal, true) {
		t.Errorf("metrics = %+v, want both sent despite cancelled caller", mc.notifications)
	}
}

func TestNewDispatcher_InvalidLogoOmitted(t *testing.T) {
	mailer := &mockMailer{}
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ev := testEvent(t)
	ev.LogoURL = "http://10.0.0.1/logo.png"

	d := NewDispatcher(mailer, security.NewEmailSanitizer(), stubValidator{err: errors.New("blocked")}, nil, logger, Options{
		FromEmail:  "events@example.com",
		InternalTo: "staff@example.com",
		Event:      ev,
	})
	d.Notify(context.Background(), testRecord())

	guest := mailer.byRecipient("ana@example.com")
	if guest == nil {
		t.Fatal("回答者向けメールが送信されていない")
	}
	if body := contentOf(guest, "text/html"); strings.Contains(body, "<img") {
		t.Errorf("invalid logo should be omitted, got %q", body)
	}
	if !strings.Contains(buf.String(), "ロゴURLが不正") {
		t.Errorf("invalid logo should be logged, got %s", buf.String())
	}
}

func TestNotify_IncludesValidLogo(t *testing.T) {
	mailer := &mockMailer{}
	var buf bytes.Buffer
	d := newTestDispatcher(t, mailer, &mockMetrics{}, &buf)

	d.Notify(context.Background(), testRecord())

	guest := mailer.byRecipient("ana@example.com")
	if guest == nil {
		t.Fatal("回答者向けメールが送信されていない")
	}
	if body := contentOf(guest, "text/html"); !strings.Contains(body, `src="https://example.com/logo.png"`) {
		t.Errorf("logo should be present, got %q", body)
	}
}
