//go:build !windows

package window

type unsupported struct{}

// NewSystem returns a manager that reports ErrUnsupported
func NewSystem() Manager {
	return unsupported{}
}

func (unsupported) Minimize(...int) error            { return ErrUnsupported }
func (unsupported) Maximize(int) error               { return ErrUnsupported }
func (unsupported) CloseByTitle(string) (int, error) { return 0, ErrUnsupported }
func (unsupported) Titles(int) ([]string, error)     { return nil, ErrUnsupported }
