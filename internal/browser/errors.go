// internal/browser/errors.go
package browser

import "errors"

var (
	// ErrScraping reports that a page could not be extracted within the retry budget.
	ErrScraping = errors.New("scraping failed")
	// ErrElementNotFound reports that a selector matched nothing where a concrete element was required.
	ErrElementNotFound = errors.New("element not found")
	// ErrWindowClosed reports an operation on a window that has been quit or detached.
	ErrWindowClosed = errors.New("window is closed")
	// ErrCommandDispatch reports a low level browser command that returned a failure status.
	ErrCommandDispatch = errors.New("browser command failed")
	// ErrJavascript reports an exception thrown by page JavaScript.
	ErrJavascript = errors.New("javascript exception")
	// ErrUnexpectedAlert reports a dialog that interrupted script execution.
	ErrUnexpectedAlert = errors.New("unexpected alert present")
)

// IsBestEffort reports whether err is a fault that JavaScript helpers swallow.
func IsBestEffort(err error) bool {
	return errors.Is(err, ErrJavascript) || errors.Is(err, ErrUnexpectedAlert)
}
