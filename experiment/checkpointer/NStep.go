package checkpointer

import "github.com/pkg/errors"

// nStep implements checkpointing every N updates
type nStep struct {
	interval int
	object   Serializable // Object to save

	// filename returns the filename of the file to save the object in
	// after some update. Use FilenameEnumerator to save each checkpoint
	// in a separate file.
	filename func(update int) string
}

// NewNStep returns a checkpointer that checkpoints every n updates.
func NewNStep(n int, object Serializable,
	filename func(update int) string) (Checkpointer, error) {
	if n <= 0 {
		return nil, errors.Errorf("newNStep: interval must be positive, "+
			"have %v", n)
	}
	return &nStep{
		interval: n,
		object:   object,
		filename: filename,
	}, nil
}

// Checkpoint checkpoints the Checkpointer's tracked object by calling
// its Save() method
func (n *nStep) Checkpoint(update int, _ float64) error {
	if update%n.interval != 0 {
		return nil
	}
	if err := n.object.Save(n.filename(update)); err != nil {
		return errors.Wrapf(err, "checkpoint: update %v", update)
	}
	return nil
}
