package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/pkg/errors"
	"github.com/reelpost/reelpost/stealthhttp"
	"github.com/sirupsen/logrus"
)

// UserAgent is the desktop Chrome identity shared by the browser and the HTTP fetchers.
const UserAgent = stealthhttp.UserAgent

// Options configures the launched Chrome.
type Options struct {
	Headless bool
	ProxyURL string
	// Bin is an explicit Chrome binary; empty lets the launcher find or fetch one.
	Bin string
}

// StealthBrowser is a rod browser whose pages are patched against automation detection.
type StealthBrowser struct {
	rodBrowser *rod.Browser
	launcher   *launcher.Launcher
}

// NewCleanBrowser launches a fresh Chrome profile with anti-detection flags.
func NewCleanBrowser(opts Options) (*StealthBrowser, error) {
	logrus.Infof("Creating stealth browser (headless: %v, proxy: %v)", opts.Headless, opts.ProxyURL != "")

	l := launcher.New().
		Headless(opts.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("user-agent", UserAgent).
		Set("disable-features", "IsolateOrigins,site-per-process,SitePerProcess").
		Set("window-size", "1920,1080").
		Set("lang", "en-US,en").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("disable-extensions").
		Set("autoplay-policy", "no-user-gesture-required").
		// CI runners have no user namespace sandbox.
		NoSandbox(true)

	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	if opts.ProxyURL != "" {
		l = l.Proxy(opts.ProxyURL)
	}

	url, err := l.Launch()
	if err != nil {
		return nil, errors.Wrap(err, "failed to launch browser")
	}
	logrus.Infof("Browser launched at: %s", url)

	rodBrowser := rod.New().ControlURL(url)
	if err := rodBrowser.Connect(); err != nil {
		l.Kill()
		return nil, errors.Wrap(err, "failed to connect to browser")
	}

	return &StealthBrowser{
		rodBrowser: rodBrowser,
		launcher:   l,
	}, nil
}

// NewPage opens a page with the stealth scripts installed before any document loads.
func (sb *StealthBrowser) NewPage() (*rod.Page, error) {
	page, err := sb.rodBrowser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create page")
	}

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		page.Close()
		return nil, errors.Wrap(err, "failed to inject stealth script")
	}
	if _, err := page.EvalOnNewDocument(extraEvasions); err != nil {
		page.Close()
		return nil, errors.Wrap(err, "failed to inject evasion script")
	}

	logrus.Debug("Stealth scripts injected into new page")
	return page, nil
}

// Close shuts the browser down and kills the launched process.
func (sb *StealthBrowser) Close() {
	if sb.rodBrowser != nil {
		if err := sb.rodBrowser.Close(); err != nil {
			logrus.Debugf("Failed to close browser: %v", err)
		}
	}
	if sb.launcher != nil {
		sb.launcher.Kill()
	}
}

const extraEvasions = `() => {
	Object.defineProperty(navigator, 'webdriver', {
		get: () => undefined
	});

	window.chrome = {
		runtime: {},
		loadTimes: function() {},
		csi: function() {},
		app: {}
	};

	const originalQuery = window.navigator.permissions.query;
	window.navigator.permissions.query = (parameters) => (
		parameters.name === 'notifications' ?
			Promise.resolve({ state: Notification.permission }) :
			originalQuery(parameters)
	);

	Object.defineProperty(navigator, 'languages', {
		get: () => ['en-US', 'en']
	});

	Object.defineProperty(navigator, 'platform', {
		get: () => 'Win32'
	});

	Object.defineProperty(navigator, 'hardwareConcurrency', {
		get: () => 8
	});
}`
