// Package session orchestrates one workflow per question: classify,
// authenticate, execute, and stream progress back to the asking connection.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	awsx "github.com/saltware-cloud/opsassistant/internal/aws"
	"github.com/saltware-cloud/opsassistant/internal/classify"
	"github.com/saltware-cloud/opsassistant/internal/gateway"
	"github.com/saltware-cloud/opsassistant/internal/inventory"
	"github.com/saltware-cloud/opsassistant/internal/report"
)

// Broker mints per-account session credentials.
type Broker interface {
	Acquire(ctx context.Context, accountID string) (awsx.SessionCredentials, error)
}

// Collector produces the inventory document for a report.
type Collector interface {
	Collect(ctx context.Context, accountID string, creds awsx.SessionCredentials, window inventory.Window) inventory.Document
}

// Renderer binds a document to HTML.
type Renderer interface {
	Render(doc inventory.Document) (string, error)
}

// ArtifactStore persists rendered output and returns serving URLs.
type ArtifactStore interface {
	WriteReport(accountID, html string) (string, error)
	WriteSummary(accountID, html string) (string, error)
	IngestScreenerDir(accountID, srcDir string) (string, error)
}

// Screener runs the external scan tool and returns its output directory.
type Screener interface {
	Run(ctx context.Context, accountID string, creds awsx.SessionCredentials, question string) (string, error)
}

// Summarizer renders a Well-Architected analysis from one scan's output.
type Summarizer interface {
	Summarize(ctx context.Context, accountID, resultDir string) (string, error)
}

// Assistant answers free-form questions over the session credentials.
type Assistant interface {
	Ask(ctx context.Context, creds awsx.SessionCredentials, prompt string) (string, error)
}

// Orchestrator dispatches questions. One task runs per QuestionKey; a
// duplicate key is dropped without any user-visible frame.
type Orchestrator struct {
	broker     Broker
	collector  Collector
	renderer   Renderer
	store      ArtifactStore
	screener   Screener
	summarizer Summarizer
	assistant  Assistant
	logger     zerolog.Logger
	now        func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}

	// tasks lets shutdown and tests wait for spawned workflows.
	tasks sync.WaitGroup
}

// NewOrchestrator wires the workflow dependencies. summarizer may be nil
// when the Well-Architected summarizer is not installed.
func NewOrchestrator(broker Broker, collector Collector, renderer Renderer, store ArtifactStore, scr Screener, summarizer Summarizer, assistant Assistant, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		broker:     broker,
		collector:  collector,
		renderer:   renderer,
		store:      store,
		screener:   scr,
		summarizer: summarizer,
		assistant:  assistant,
		logger:     logger,
		now:        time.Now,
		inFlight:   map[string]struct{}{},
	}
}

// questionKey identifies one in-flight question: connection plus session.
func questionKey(connID, sessionID string) string {
	return connID + ":" + sessionID
}

// Handle implements gateway.Handler. It spawns the workflow and returns
// immediately so the connection's read loop is never blocked.
func (o *Orchestrator) Handle(ctx context.Context, conn gateway.Client, sessionID, text string) {
	key := questionKey(conn.ID(), sessionID)

	o.mu.Lock()
	if _, dup := o.inFlight[key]; dup {
		o.mu.Unlock()
		o.logger.Warn().Str("question_key", key).Msg("duplicate question dropped")
		return
	}
	o.inFlight[key] = struct{}{}
	o.mu.Unlock()

	o.tasks.Add(1)
	go func() {
		defer o.tasks.Done()
		defer func() {
			o.mu.Lock()
			delete(o.inFlight, key)
			o.mu.Unlock()
		}()
		o.runWorkflow(ctx, conn, sessionID, text)
	}()
}

// Wait blocks until every spawned workflow has finished.
func (o *Orchestrator) Wait() { o.tasks.Wait() }

// emit sends a frame unless the originating connection is gone.
func (o *Orchestrator) emit(ctx context.Context, conn gateway.Client, frame gateway.Frame) {
	select {
	case <-ctx.Done():
	default:
		conn.Send(frame)
	}
}

func (o *Orchestrator) runWorkflow(ctx context.Context, conn gateway.Client, sessionID, text string) {
	c := classify.Classify(text, o.now())
	logger := o.logger.With().
		Str("question_key", questionKey(conn.ID(), sessionID)).
		Str("kind", c.Kind.String()).
		Str("account_id", c.AccountID).
		Logger()
	logger.Info().Msg("question classified")

	needsAccount := c.Kind == classify.KindReport || c.Kind == classify.KindScreener
	if c.AccountID == "" && needsAccount {
		o.emit(ctx, conn, gateway.NewFrame(gateway.FrameError, sessionID,
			"AWS 계정 ID(12자리 숫자)를 질문에 포함해 주세요. 예: 123456789012 보고서"))
		return
	}

	// Questions without an account run without credentials; the assistant
	// answers them from general knowledge.
	var creds awsx.SessionCredentials
	if c.AccountID != "" {
		o.emit(ctx, conn, gateway.NewFrame(gateway.FrameProgress, sessionID,
			fmt.Sprintf("🔐 AWS 계정 %s 인증 중...", c.AccountID)))

		var err error
		creds, err = o.broker.Acquire(ctx, c.AccountID)
		if err != nil {
			logger.Error().Err(err).Msg("authentication failed")
			o.emit(ctx, conn, gateway.NewFrame(gateway.FrameError, sessionID,
				fmt.Sprintf("❌ 계정 %s에 접근할 수 없습니다. 권한 설정을 확인해 주세요.", c.AccountID)))
			return
		}
		o.emit(ctx, conn, gateway.NewFrame(gateway.FrameProgress, sessionID,
			"✅ AWS 인증 성공! 요청을 처리합니다..."))
	}

	var result string
	var err error
	switch c.Kind {
	case classify.KindReport:
		result, err = o.runReport(ctx, conn, sessionID, c, creds)
	case classify.KindScreener:
		result, err = o.runScreener(ctx, conn, sessionID, c, creds, text)
	default:
		result, err = o.runAssistant(ctx, creds, text)
	}
	if err != nil {
		logger.Error().Err(err).Msg("workflow failed")
		o.emit(ctx, conn, gateway.NewFrame(gateway.FrameError, sessionID, userMessage(err)))
		return
	}

	o.emit(ctx, conn, gateway.NewFrame(gateway.FrameResult, sessionID, result))
	logger.Info().Msg("workflow completed")
}

func (o *Orchestrator) runReport(ctx context.Context, conn gateway.Client, sessionID string, c classify.Classification, creds awsx.SessionCredentials) (string, error) {
	start, endExcl := classify.MonthWindow(c.Year, c.Month, time.UTC)
	window := inventory.Window{Start: start, End: endExcl.AddDate(0, 0, -1)}

	o.emit(ctx, conn, gateway.NewFrame(gateway.FrameProgress, sessionID,
		fmt.Sprintf("📊 %d년 %d월 보안 데이터를 수집하고 있습니다...", c.Year, c.Month)))

	doc := o.collector.Collect(ctx, c.AccountID, creds, window)

	html, err := o.renderer.Render(doc)
	if err != nil {
		return "", fmt.Errorf("rendering report: %w", err)
	}
	url, err := o.store.WriteReport(c.AccountID, html)
	if err != nil {
		return "", fmt.Errorf("storing report: %w", err)
	}

	summary := report.RenderSummaryText(doc)
	return fmt.Sprintf("%s\n📊 상세 보고서: %s", summary, url), nil
}

func (o *Orchestrator) runScreener(ctx context.Context, conn gateway.Client, sessionID string, c classify.Classification, creds awsx.SessionCredentials, text string) (string, error) {
	o.emit(ctx, conn, gateway.NewFrame(gateway.FrameProgress, sessionID,
		fmt.Sprintf("🔍 계정 %s Service Screener 스캔을 시작합니다... (약 2-5분 소요)", c.AccountID)))

	outDir, err := o.screener.Run(ctx, c.AccountID, creds, text)
	if err != nil {
		return "", err
	}
	url, err := o.store.IngestScreenerDir(c.AccountID, outDir)
	if err != nil {
		return "", fmt.Errorf("publishing screener output: %w", err)
	}
	result := fmt.Sprintf("✅ 스캔 완료!\n📊 Service Screener 상세 보고서: %s", url)

	// The Well-Architected analysis is a bonus on top of a successful
	// scan; its failure never fails the scan itself.
	if o.summarizer != nil {
		o.emit(ctx, conn, gateway.NewFrame(gateway.FrameProgress, sessionID,
			"📋 Well-Architected 통합 분석 보고서를 생성하고 있습니다..."))
		if waURL, waErr := o.writeSummary(ctx, c.AccountID, outDir); waErr != nil {
			o.logger.Warn().Str("account_id", c.AccountID).Err(waErr).Msg("wa summary skipped")
		} else {
			result += "\n📋 Well-Architected 통합 분석 보고서: " + waURL
		}
	}
	return result, nil
}

func (o *Orchestrator) writeSummary(ctx context.Context, accountID, outDir string) (string, error) {
	html, err := o.summarizer.Summarize(ctx, accountID, outDir)
	if err != nil {
		return "", err
	}
	url, err := o.store.WriteSummary(accountID, html)
	if err != nil {
		return "", fmt.Errorf("storing summary: %w", err)
	}
	return url, nil
}

func (o *Orchestrator) runAssistant(ctx context.Context, creds awsx.SessionCredentials, text string) (string, error) {
	return o.assistant.Ask(ctx, creds, text)
}
