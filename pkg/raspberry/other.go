//go:build !linux

package raspberry

func openChipLine(int, Options) (Line, error) {
	return nil, ErrUnsupported
}

func openMemLine(int, Options) (Line, error) {
	return nil, ErrUnsupported
}
