package hotkey

type FakeHotkey struct {
	binding    Binding
	registered bool
	regErr     error
	keydown    chan struct{}
	keyup      chan struct{}
}

func NewFake() *FakeHotkey {
	return &FakeHotkey{
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

// NewFakeFailing returns a fake whose Register always fails with err,
// simulating a combination already claimed by another process.
func NewFakeFailing(err error) *FakeHotkey {
	f := NewFake()
	f.regErr = err
	return f
}

func (f *FakeHotkey) Register() error {
	if f.regErr != nil {
		return f.regErr
	}
	f.registered = true
	return nil
}

func (f *FakeHotkey) Unregister()              { f.registered = false }
func (f *FakeHotkey) Registered() bool         { return f.registered }
func (f *FakeHotkey) Keydown() <-chan struct{} { return f.keydown }
func (f *FakeHotkey) Keyup() <-chan struct{}   { return f.keyup }

func (f *FakeHotkey) SimKeydown() { f.keydown <- struct{}{} }
func (f *FakeHotkey) SimKeyup()   { f.keyup <- struct{}{} }
