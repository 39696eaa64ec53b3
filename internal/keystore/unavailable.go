package keystore

// Unavailable is a KeyStore that cannot be reached. Every operation fails
// with ErrUnavailable wrapping Cause.
type Unavailable struct {
	Cause error
}

func (u Unavailable) Name() string { return "unavailable" }

func (u Unavailable) err() error {
	if u.Cause == nil {
		return ErrUnavailable
	}
	return unavailable(u.Cause)
}

func (u Unavailable) HasEntry(string) (bool, error) { return false, u.err() }

func (u Unavailable) CreateEntry(string, Params) error { return u.err() }

func (u Unavailable) GetKey(string) (*Key, error) { return nil, u.err() }
