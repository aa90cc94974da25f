package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"paperslides/internal/logging"
	"paperslides/internal/slides"
)

// PrinterConfig configures headless printing.
type PrinterConfig struct {
	// DebuggerURL connects to an already running Chromium.
	DebuggerURL string
	// BrowserBin launches this binary; empty lets rod find or fetch one.
	BrowserBin string
	Landscape  bool
	Timeout    time.Duration
}

// Printer prints HTML to PDF with a headless Chromium it owns.
type Printer struct {
	mu         sync.Mutex
	cfg        PrinterConfig
	browser    *rod.Browser
	launch     *launcher.Launcher
	controlURL string
}

// NewPrinter creates a printer; Start is called lazily by PrintPDF.
func NewPrinter(cfg PrinterConfig) *Printer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Printer{cfg: cfg}
}

// Start connects to the configured debugger or launches Chromium.
func (p *Printer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browser != nil {
		if _, err := p.browser.Version(); err == nil {
			return nil
		}
		logging.Get(logging.CategoryExport).Warn("Stale browser connection detected, reconnecting")
		_ = p.browser.Close()
		p.browser = nil
	}

	controlURL := p.cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(true).Context(ctx)
		if p.cfg.BrowserBin != "" {
			l = l.Bin(p.cfg.BrowserBin)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("failed to launch chromium: %w", err)
		}
		p.launch = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		p.killLocked()
		return fmt.Errorf("failed to connect to chromium: %w", err)
	}
	p.browser = browser
	p.controlURL = controlURL
	logging.Get(logging.CategoryExport).Debug("Connected to chromium at %s", controlURL)
	return nil
}

// Shutdown closes the browser and any process the printer launched.
func (p *Printer) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.browser != nil {
		err = p.browser.Close()
		p.browser = nil
	}
	p.killLocked()
	p.controlURL = ""
	return err
}

func (p *Printer) killLocked() {
	if p.launch != nil {
		p.launch.Kill()
		p.launch.Cleanup()
		p.launch = nil
	}
}

// PrintPDF renders html in a fresh page and returns the PDF bytes.
func (p *Printer) PrintPDF(ctx context.Context, html string) ([]byte, error) {
	if err := p.Start(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	p.mu.Lock()
	browser := p.browser
	p.mu.Unlock()
	if browser == nil {
		return nil, errors.New("printer is shut down")
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("failed to load deck: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("failed waiting for deck: %w", err)
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{
		Landscape:         p.cfg.Landscape,
		PrintBackground:   true,
		PreferCSSPageSize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to print pdf: %w", err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf stream: %w", err)
	}
	return data, nil
}

// WritePDF renders d to HTML, prints it and writes the PDF to path.
func (p *Printer) WritePDF(ctx context.Context, d *slides.Deck, path string) error {
	timer := logging.StartTimer(logging.CategoryExport, "pdf "+path)
	defer timer.Stop()

	doc, err := HTML(d)
	if err != nil {
		return err
	}
	data, err := p.PrintPDF(ctx, string(doc))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	logging.Get(logging.CategoryExport).Info("Wrote %s (%d bytes)", path, len(data))
	return nil
}
