package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nexconsult/recibo-api/internal/automation"
	"github.com/nexconsult/recibo-api/internal/config"
)

// chromeBinaries are probed in order when no executable path is configured.
var chromeBinaries = []string{
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
}

// BrowserService launches one browser process per session. Sessions are
// never pooled or shared.
type BrowserService struct {
	config     config.BrowserConfig
	navigation time.Duration
	logger     *logrus.Logger

	mu       sync.RWMutex
	active   map[string]*Session
	closed   bool
	launched int64
	failed   int64
	released int64
}

// Session is an exclusively owned browser. Close is safe to call more
// than once and from any exit path.
type Session struct {
	ID   string
	Page automation.Page

	dir      string
	release  func()
	onClose  func(*Session)
	logger   logrus.FieldLogger
	once     sync.Once
	closeErr error
}

// Close kills the browser, removes the session's download directory and
// never panics.
func (s *Session) Close() error {
	s.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				s.closeErr = fmt.Errorf("panic while closing session %s: %v", s.ID, r)
			}
			if s.onClose != nil {
				s.onClose(s)
			}
		}()

		if s.release != nil {
			s.release()
		}
		if s.dir != "" {
			if err := os.RemoveAll(s.dir); err != nil {
				s.closeErr = fmt.Errorf("failed to remove download dir: %w", err)
			}
		}
		if s.logger != nil {
			s.logger.Debug("Browser session released")
		}
	})
	return s.closeErr
}

// NewBrowserService creates a new browser service
func NewBrowserService(cfg config.BrowserConfig, navigation time.Duration, logger *logrus.Logger) *BrowserService {
	return &BrowserService{
		config:     cfg,
		navigation: navigation,
		logger:     logger,
		active:     make(map[string]*Session),
	}
}

func (s *BrowserService) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("no-zygote", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-features", "TranslateUI,VizDisplayCompositor"),
		chromedp.Flag("disable-ipc-flooding-protection", true),
		chromedp.WindowSize(s.config.WindowWidth, s.config.WindowHeight),
		chromedp.UserAgent(s.config.UserAgent),
	}

	if s.config.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if s.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.config.ExecPath))
	}
	return opts
}

// NewSession launches a browser and attaches a page to its first tab.
// Cancelling ctx only aborts the launch; the session lives until Close.
func (s *BrowserService) NewSession(ctx context.Context) (*Session, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("browser service is closed")
	}

	id := uuid.NewString()
	log := s.logger.WithField("session_id", id)

	dir := filepath.Join(s.config.DownloadDir, "recibo-"+id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		s.countFailure()
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), s.allocatorOptions()...)
	// chromedp reports unhandled protocol events through errorf; they are noise here.
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Debugf),
		chromedp.WithErrorf(log.Debugf),
	)
	release := func() {
		cancelTab()
		cancelAlloc()
	}
	abort := func(err error) (*Session, error) {
		release()
		_ = os.RemoveAll(dir)
		s.countFailure()
		return nil, err
	}

	// The first Run starts the browser and must not carry a deadline.
	stop := context.AfterFunc(ctx, cancelTab)
	err := chromedp.Run(tabCtx)
	stop()
	if err != nil {
		return abort(fmt.Errorf("failed to launch browser: %w", err))
	}

	page, err := newChromePage(tabCtx, pageOptions{
		downloadDir:       dir,
		navigationTimeout: s.navigation,
		userAgent:         s.config.UserAgent,
		logger:            log,
	})
	if err != nil {
		return abort(err)
	}

	session := &Session{
		ID:      id,
		Page:    page,
		dir:     dir,
		release: release,
		logger:  log,
	}
	if err := s.track(session); err != nil {
		_ = session.Close()
		return nil, err
	}

	log.Info("Browser session started")
	return session, nil
}

func (s *BrowserService) track(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("browser service is closed")
	}
	session.onClose = s.forget
	s.active[session.ID] = session
	s.launched++
	return nil
}

func (s *BrowserService) forget(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[session.ID]; ok {
		delete(s.active, session.ID)
		s.released++
	}
}

func (s *BrowserService) countFailure() {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
}

// GetStats returns session counters
func (s *BrowserService) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"active_sessions":   len(s.active),
		"launched_sessions": s.launched,
		"released_sessions": s.released,
		"failed_launches":   s.failed,
		"headless":          s.config.Headless,
	}
}

// Binary returns the browser executable sessions will launch.
func (s *BrowserService) Binary() (string, error) {
	if s.config.ExecPath != "" {
		if _, err := os.Stat(s.config.ExecPath); err != nil {
			return "", fmt.Errorf("configured browser binary: %w", err)
		}
		return s.config.ExecPath, nil
	}
	for _, name := range chromeBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", errors.New("no chrome binary found in PATH")
}

// Health returns browser service health status
func (s *BrowserService) Health() map[string]interface{} {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()

	health := map[string]interface{}{
		"status": "healthy",
		"stats":  s.GetStats(),
	}
	if closed {
		health["status"] = "unhealthy"
		health["error"] = "browser service is closed"
		return health
	}
	binary, err := s.Binary()
	if err != nil {
		health["status"] = "unhealthy"
		health["error"] = err.Error()
		return health
	}
	health["binary"] = binary
	return health
}

// Close refuses new sessions and releases every active one
func (s *BrowserService) Close() error {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*Session, 0, len(s.active))
	for _, session := range s.active {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	var errs []error
	for _, session := range sessions {
		if err := session.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.logger.WithField("released", len(sessions)).Info("Browser service closed")
	return errors.Join(errs...)
}
