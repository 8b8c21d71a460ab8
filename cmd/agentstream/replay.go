package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentstream/config"
	"github.com/BaSui01/agentstream/pipeline"
	"github.com/BaSui01/agentstream/processor"
	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

// replayOptions replay 命令行参数
type replayOptions struct {
	ConfigPath  string
	Input       string
	Dialect     string
	RunID       string
	Summary     string
	MetricsAddr string
}

// runSummary 运行结束后输出的 JSON 摘要
type runSummary struct {
	RunID        string              `json:"runId"`
	Dialect      string              `json:"dialect"`
	FinishReason stream.FinishReason `json:"finishReason"`
	Usage        types.Usage         `json:"usage"`
	Steps        int                 `json:"steps"`
	ToolCalls    int                 `json:"toolCalls"`
	TextLength   int                 `json:"textLength"`
	Chunks       map[string]int      `json:"chunks"`
	Object       any                 `json:"object,omitempty"`
	Tripwire     *processor.TripWire `json:"tripwire,omitempty"`
	Error        string              `json:"error,omitempty"`
	Duration     string              `json:"duration"`
}

func runReplay(ctx context.Context, cfg *config.Config, opts replayOptions, stdout, stderr io.Writer, logger *zap.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Close(shutdownCtx)
	}()

	p, err := pipeline.New(cfg, a.deps)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	in, closeInput, err := openInput(opts.Input)
	if err != nil {
		return err
	}
	defer closeInput()

	start := time.Now()
	out, err := p.Replay(ctx, in, opts.RunID)
	if err != nil {
		return err
	}
	logger.Info("replay started", zap.String("run_id", out.RunID()), zap.String("dialect", cfg.Stream.Dialect))

	// 文本流与完整事件流并发消费
	counts := make(map[string]int)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		wrote := false
		for text := range out.TextStream(gctx) {
			if _, err := io.WriteString(stdout, text); err != nil {
				return fmt.Errorf("write text: %w", err)
			}
			wrote = true
		}
		if wrote {
			_, _ = io.WriteString(stdout, "\n")
		}
		return nil
	})
	g.Go(func() error {
		for c := range out.FullStream(gctx) {
			counts[string(c.Type)]++
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	res, _ := out.Result(ctx)
	if res == nil {
		return ctx.Err()
	}
	summary := runSummary{
		RunID:        res.RunID,
		Dialect:      cfg.Stream.Dialect,
		FinishReason: res.FinishReason,
		Usage:        res.Usage,
		Steps:        len(res.Steps),
		ToolCalls:    len(res.ToolCalls),
		TextLength:   len(res.Text),
		Chunks:       counts,
		Object:       res.Object,
		Tripwire:     res.Tripwire,
		Duration:     time.Since(start).Round(time.Millisecond).String(),
	}
	if res.Err != nil {
		summary.Error = res.Err.Error()
	}
	if err := writeSummary(opts.Summary, stderr, summary); err != nil {
		return err
	}

	if res.Tripwire != nil {
		logger.Warn("run blocked by processor",
			zap.String("processor", res.Tripwire.Processor),
			zap.String("reason", res.Tripwire.Reason))
	}
	return res.Err
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func writeSummary(path string, fallback io.Writer, s runSummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = fallback.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
