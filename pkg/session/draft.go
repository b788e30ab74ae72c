package session

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Attachment is a file selected in the composer. It is shown to the user
// but never sent to the backend.
type Attachment struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
	Size int64  `json:"size" yaml:"size"`
}

// NewAttachment stats path and returns the attachment describing it.
func NewAttachment(path string) (*Attachment, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("attachment path is empty")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not select attachment %s", path)
	}
	if fi.IsDir() {
		return nil, errors.Errorf("attachment %s is a directory", path)
	}
	return &Attachment{
		Name: filepath.Base(path),
		Path: path,
		Size: fi.Size(),
	}, nil
}

// Draft is the composer state: the input text and the selected attachment.
type Draft struct {
	Text       string
	Attachment *Attachment
}

// IsEmpty reports whether there is nothing to send.
func (d Draft) IsEmpty() bool {
	return strings.TrimSpace(d.Text) == "" && d.Attachment == nil
}

// HasQuestion reports whether the draft carries text for the backend.
func (d Draft) HasQuestion() bool {
	return strings.TrimSpace(d.Text) != ""
}
