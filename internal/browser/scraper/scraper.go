// internal/browser/scraper/scraper.go
package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/webtraversal/api/schemas"
	"github.com/xkilldash9x/webtraversal/internal/browser"
	"github.com/xkilldash9x/webtraversal/internal/browser/jsexec"
	"github.com/xkilldash9x/webtraversal/internal/config"
	"github.com/xkilldash9x/webtraversal/internal/snapshot"
)

// Names of the screenshots taken with every snapshot.
const (
	ScreenshotFirst = "first"
	ScreenshotFull  = "full"
)

// Page metadata keys.
const (
	MetaTimestamp    = "timestamp"
	MetaURL          = "url"
	MetaTitle        = "title"
	MetaDriver       = "driver"
	MetaFullPageSize = "full_page_size"
	MetaPixelRatio   = "device_pixel_ratio"
	MetaNumElements  = "num_elements"
	MetaVersion      = "wtl_version"
)

const loadPollInterval = 250 * time.Millisecond

// PostloadFunc runs after every page load, before the page is snapshotted.
type PostloadFunc func(ctx context.Context) error

// Scraper loads pages in the driver's current tab and turns them into snapshots.
type Scraper struct {
	driver   browser.Driver
	js       *jsexec.Wrapper
	cfg      *config.Config
	logger   *zap.Logger
	version  string
	postload []PostloadFunc
}

// New creates a Scraper. version is recorded in every snapshot's metadata.
func New(driver browser.Driver, js *jsexec.Wrapper, cfg *config.Config, logger *zap.Logger, version string) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		driver:  driver,
		js:      js,
		cfg:     cfg,
		logger:  logger.Named("scraper"),
		version: version,
	}
}

// AddPostload registers a callback run after each page load.
func (s *Scraper) AddPostload(fn PostloadFunc) {
	s.postload = append(s.postload, fn)
}

// NormalizeURL prefixes http:// to URLs without a scheme.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") {
		return raw
	}
	for _, scheme := range []string{"about:", "data:", "javascript:"} {
		if strings.HasPrefix(raw, scheme) {
			return raw
		}
	}
	return "http://" + raw
}

// Navigate loads target in the current tab and waits for it to settle.
func (s *Scraper) Navigate(ctx context.Context, target string) error {
	target = NormalizeURL(target)
	s.logger.Info("Navigating", zap.String("url", target))
	if err := s.driver.Navigate(ctx, target); err != nil {
		return fmt.Errorf("failed to navigate to '%s': %w", target, err)
	}
	if s.cfg.Scraping.DisableAnimations {
		if err := s.js.DisableAnimations(ctx); err != nil {
			return err
		}
	}
	return s.WaitUntilLoaded(ctx)
}

// Refresh reloads the current tab and waits for it to settle.
func (s *Scraper) Refresh(ctx context.Context) error {
	if err := s.driver.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload page: %w", err)
	}
	return s.WaitUntilLoaded(ctx)
}

// WaitUntilLoaded polls the page load heuristic for up to
// scraping.page_load_timeout, then lets the page settle, optionally
// prescrolls to trigger lazy content, and runs the postload callbacks. A
// page that never reports loaded is logged and scraped anyway.
func (s *Scraper) WaitUntilLoaded(ctx context.Context) error {
	waitCtx := ctx
	if timeout := s.cfg.Scraping.PageLoadTimeout; timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	limiter := rate.NewLimiter(rate.Every(loadPollInterval), 1)
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logPageLoadTimeout()
			break
		}
		loaded, err := s.js.IsPageLoaded(waitCtx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if waitCtx.Err() == nil {
				return err
			}
			s.logPageLoadTimeout()
			break
		}
		if loaded {
			break
		}
	}

	if err := sleep(ctx, s.cfg.Scraping.WaitLoading); err != nil {
		return err
	}
	if s.cfg.Scraping.Prescroll {
		for _, y := range []float64{100, 9999, 0} {
			if err := s.js.ScrollTo(ctx, 0, y); err != nil {
				return err
			}
			if err := sleep(ctx, s.cfg.Scraping.WaitScroll); err != nil {
				return err
			}
		}
	}
	for _, fn := range s.postload {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("postload callback failed: %w", err)
		}
	}
	return nil
}

func (s *Scraper) logPageLoadTimeout() {
	s.logger.Warn("Page did not report loaded before the timeout.", zap.Duration("timeout", s.cfg.Scraping.PageLoadTimeout))
}

// ScrapeCurrentPage snapshots the current tab. Failed attempts are logged,
// followed by a refresh, up to scraping.attempts times; the last failure is
// returned wrapped in browser.ErrScraping.
func (s *Scraper) ScrapeCurrentPage(ctx context.Context) (*snapshot.PageSnapshot, error) {
	attempts := max(s.cfg.Scraping.Attempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		snap, err := s.scrape(ctx)
		if err == nil {
			return snap, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		s.logger.Warn("Scraping failed, refreshing and trying again.",
			zap.Int("attempt", attempt), zap.Int("attempts", attempts), zap.Error(err))
		if err := s.Refresh(ctx); err != nil {
			if errors.Is(err, browser.ErrWindowClosed) || ctx.Err() != nil {
				return nil, err
			}
			s.logger.Warn("Refresh before retry failed.", zap.Error(err))
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", browser.ErrScraping, attempts, lastErr)
}

func (s *Scraper) scrape(ctx context.Context) (*snapshot.PageSnapshot, error) {
	// Metadata first: it tags the DOM with the uids the source must carry.
	elements, err := s.js.ElementMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("element metadata: %w", err)
	}
	source, err := s.driver.PageSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("page source: %w", err)
	}
	size, err := s.js.PageSize(ctx)
	if err != nil {
		return nil, err
	}
	shots, err := s.screenshots(ctx, size)
	if err != nil {
		return nil, err
	}
	page, err := s.pageMetadata(ctx, size, len(elements), shots)
	if err != nil {
		return nil, err
	}
	return snapshot.New(source, page, elements, shots, s.mhtml(ctx))
}

func (s *Scraper) pageMetadata(ctx context.Context, size jsexec.PageSize, n int, shots []*snapshot.Screenshot) (map[string]any, error) {
	u, err := s.driver.CurrentURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("current url: %w", err)
	}
	title, err := s.driver.Title(ctx)
	if err != nil {
		return nil, fmt.Errorf("title: %w", err)
	}
	names := make([]any, len(shots))
	for i, shot := range shots {
		names[i] = shot.Name
	}
	return map[string]any{
		MetaTimestamp:           time.Now().UTC().Format(time.RFC3339Nano),
		MetaURL:                 u,
		MetaTitle:               title,
		MetaDriver:              s.driver.Name(),
		MetaFullPageSize:        map[string]any{"width": size.Width, "height": size.Height},
		MetaPixelRatio:          size.PixelRatio,
		MetaNumElements:         n,
		snapshot.KeyScreenshots: names,
		MetaVersion:             s.version,
	}, nil
}

// Screenshot captures the viewport under the given name.
func (s *Scraper) Screenshot(ctx context.Context, name string) (*snapshot.Screenshot, error) {
	raw, err := s.driver.Screenshot(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("viewport screenshot: %w", err)
	}
	return snapshot.DecodeScreenshot(name, raw)
}

func (s *Scraper) screenshots(ctx context.Context, size jsexec.PageSize) ([]*snapshot.Screenshot, error) {
	first, err := s.Screenshot(ctx, ScreenshotFirst)
	if err != nil {
		return nil, err
	}
	viewport, err := s.js.FindViewport(ctx)
	if err != nil {
		return nil, err
	}
	limit := float64(s.cfg.Scrolling.MaxPageHeight)
	if limit < viewport.Height() {
		return []*snapshot.Screenshot{first, first.Copy(ScreenshotFull)}, nil
	}
	clip := schemas.Rect(0, 0, viewport.Width(), max(min(size.Height, limit), viewport.Height()))
	raw, err := s.driver.Screenshot(ctx, &clip)
	if err != nil {
		return nil, fmt.Errorf("full page screenshot: %w", err)
	}
	full, err := snapshot.DecodeScreenshot(ScreenshotFull, raw)
	if err != nil {
		return nil, err
	}
	return []*snapshot.Screenshot{first, full}, nil
}

// mhtml returns the page archive when enabled, or nil. Failures are logged.
func (s *Scraper) mhtml(ctx context.Context) []byte {
	if !s.cfg.Scraping.SaveMHTML {
		return nil
	}
	if !s.cfg.Browser.EnableMHTML {
		s.logger.Warn("scraping.save_mhtml requires browser.enable_mhtml, skipping MHTML capture.")
		return nil
	}
	if timeout := s.cfg.Scraping.MHTMLTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	data, err := s.driver.MHTML(ctx)
	if err != nil {
		s.logger.Warn("MHTML capture failed.", zap.Error(err))
		return nil
	}
	return data
}

// sleep pauses for d, returning early if ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
