// Package media stores uploaded chat media on local disk.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"messaging-service/internal/models"
)

var ErrUnsupportedMedia = errors.New("only images and videos are accepted")

const chatSubdir = "chat"

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Store saves one uploaded file and describes it as an attachment.
type Store interface {
	Save(originalName string, size int64, r io.Reader) (models.Attachment, error)
	Remove(att models.Attachment) error
}

// DiskStore writes files under <root>/chat and serves them from <baseURL>/uploads/chat.
type DiskStore struct {
	root    string
	baseURL string
}

// NewDiskStore creates the chat upload directory when missing.
func NewDiskStore(root, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(filepath.Join(root, chatSubdir), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save sniffs the content type, rejects anything but images and videos, and
// writes the file under a collision-free name.
func (s *DiskStore) Save(originalName string, size int64, r io.Reader) (models.Attachment, error) {
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("detect content type: %w", err)
	}
	kind := models.AttachmentTypeForMime(mt.String())
	if kind != models.AttachmentImage && kind != models.AttachmentVideo {
		return models.Attachment{}, ErrUnsupportedMedia
	}

	if rs, ok := r.(io.Seeker); ok {
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return models.Attachment{}, fmt.Errorf("rewind upload: %w", err)
		}
	} else {
		return models.Attachment{}, errors.New("upload reader must be seekable")
	}

	name := storedName(originalName, mt.Extension())
	path := filepath.Join(s.root, chatSubdir, name)
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("create file: %w", err)
	}
	written, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return models.Attachment{}, fmt.Errorf("write file: %w", err)
	}
	if size <= 0 {
		size = written
	}

	return models.Attachment{
		Type: kind,
		URL:  s.baseURL + "/uploads/" + chatSubdir + "/" + name,
		Name: displayName(originalName),
		Size: size,
		Mime: mt.String(),
	}, nil
}

// Remove deletes a file previously returned by Save.
func (s *DiskStore) Remove(att models.Attachment) error {
	idx := strings.LastIndex(att.URL, "/")
	if idx < 0 {
		return nil
	}
	err := os.Remove(filepath.Join(s.root, chatSubdir, filepath.Base(att.URL[idx+1:])))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// storedName keeps a readable prefix of the client name plus a uuid suffix.
func storedName(originalName, sniffedExt string) string {
	base := filepath.Base(originalName)
	ext := strings.ToLower(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.Trim(unsafeName.ReplaceAllString(stem, "_"), "._-")
	if len(stem) > 40 {
		stem = stem[:40]
	}
	if stem == "" {
		stem = "file"
	}
	if sniffedExt != "" {
		ext = sniffedExt
	}
	return fmt.Sprintf("%s-%s%s", stem, uuid.NewString(), ext)
}

func displayName(originalName string) string {
	name := filepath.Base(strings.TrimSpace(originalName))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}
