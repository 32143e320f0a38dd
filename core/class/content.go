package class

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"

	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/core/policy"
	"github.com/trezcool/propdesk/core/prop"
	"github.com/trezcool/propdesk/core/session"
)

var (
	ErrNotAnImage = errors.New("file is not an image")
	ErrEmptyFile  = errors.New("file is empty")
)

// authorizeEdit checks that sess may write the pair's content.
// Content only exists for assigned pairs, whoever edits it.
func (svc *service) authorizeEdit(ctx context.Context, sess session.Session, pair Pair) error {
	action := policy.EditOthersContent
	if pair.InstructorID == sess.UserID {
		action = policy.EditOwnContent
	}
	// coarse check first so unauthorized callers never reach the store
	if !sess.Can(action, pair.InstructorID, true) {
		return core.ErrForbidden
	}

	if _, err := svc.repo.GetClass(ctx, pair.ClassID); err != nil {
		return err
	}
	assigned, err := svc.repo.IsAssigned(ctx, pair)
	if err != nil {
		return errors.Wrap(err, "checking assignment")
	}
	if !sess.Can(action, pair.InstructorID, assigned) {
		return core.ErrForbidden
	}
	if !assigned {
		return core.NewValidationError(
			ErrInstructorUnassigned,
			core.FieldError{Field: "instructor_id", Error: ErrInstructorUnassigned.Error()},
		)
	}
	return nil
}

// GetContent returns the props, images and note of a pair. Unassigned pairs have no content.
func (svc *service) GetContent(ctx context.Context, sess session.Session, pair Pair) (Content, error) {
	if !sess.Can(policy.ViewLookup, pair.InstructorID, false) {
		return Content{}, core.ErrForbidden
	}
	if _, err := svc.repo.GetClass(ctx, pair.ClassID); err != nil {
		return Content{}, err
	}

	props, err := svc.repo.QueryClassProps(ctx, pair)
	if err != nil {
		return Content{}, errors.Wrap(err, "querying props")
	}
	images, err := svc.repo.QueryImages(ctx, pair)
	if err != nil {
		return Content{}, errors.Wrap(err, "querying images")
	}
	content := Content{Props: props, Images: images}

	note, err := svc.repo.GetNote(ctx, pair)
	switch errors.Cause(err) {
	case nil:
		content.Note = note.Note
	case ErrContentNotFound:
	default:
		return Content{}, errors.Wrap(err, "getting note")
	}
	return content, nil
}

func (svc *service) AddProp(ctx context.Context, sess session.Session, pair Pair, data AddClassProp) (ClassProp, error) {
	if err := svc.authorizeEdit(ctx, sess, pair); err != nil {
		return ClassProp{}, err
	}
	if err := svc.validate.Struct(data); err != nil {
		return ClassProp{}, err
	}
	if _, err := svc.props.GetProp(ctx, data.PropID); err != nil {
		if errors.Cause(err) == prop.ErrNotFound {
			return ClassProp{}, core.NewValidationError(err, core.FieldError{Field: "prop_id", Error: err.Error()})
		}
		return ClassProp{}, err
	}
	return svc.repo.AddClassProp(ctx, pair, data.PropID)
}

func (svc *service) RemoveProp(ctx context.Context, sess session.Session, pair Pair, classPropID int64) error {
	if err := svc.authorizeEdit(ctx, sess, pair); err != nil {
		return err
	}
	return svc.repo.DeleteClassProp(ctx, pair, classPropID)
}

func (svc *service) UploadImage(ctx context.Context, sess session.Session, pair Pair, upload Upload) (Image, error) {
	if err := svc.authorizeEdit(ctx, sess, pair); err != nil {
		return Image{}, err
	}
	url, err := svc.storeImage(ctx, pair, upload)
	if err != nil {
		return Image{}, err
	}
	images, _, err := svc.repo.SaveContent(ctx, pair, []string{url}, nil)
	if err != nil {
		return Image{}, err
	}
	return images[0], nil
}

// DeleteImage removes the image row only; the stored blob is kept.
func (svc *service) DeleteImage(ctx context.Context, sess session.Session, pair Pair, imageID int64) error {
	if err := svc.authorizeEdit(ctx, sess, pair); err != nil {
		return err
	}
	return svc.repo.DeleteImage(ctx, pair, imageID)
}

// SaveNote updates the pair's note or creates it if none exists.
func (svc *service) SaveNote(ctx context.Context, sess session.Session, pair Pair, data SaveNote) (Note, error) {
	if err := svc.authorizeEdit(ctx, sess, pair); err != nil {
		return Note{}, err
	}
	if err := svc.validate.Struct(data); err != nil {
		return Note{}, err
	}
	_, note, err := svc.repo.SaveContent(ctx, pair, nil, &data.Note)
	if err != nil {
		return Note{}, err
	}
	return *note, nil
}

// SaveAll uploads every pending image, then records the images and the note in one transaction.
// The first failed upload aborts the save; nothing is written to the record store in that case.
func (svc *service) SaveAll(ctx context.Context, sess session.Session, pair Pair, uploads []Upload, note *SaveNote) (Content, error) {
	if err := svc.authorizeEdit(ctx, sess, pair); err != nil {
		return Content{}, err
	}
	var text *string
	if note != nil {
		if err := svc.validate.Struct(note); err != nil {
			return Content{}, err
		}
		text = &note.Note
	}

	// reject bad files before anything is uploaded
	for _, upload := range uploads {
		if _, err := sniffImage(upload); err != nil {
			return Content{}, err
		}
	}
	urls := make([]string, 0, len(uploads))
	for _, upload := range uploads {
		url, err := svc.storeImage(ctx, pair, upload)
		if err != nil {
			return Content{}, err
		}
		urls = append(urls, url)
	}
	if len(urls) > 0 || text != nil {
		if _, _, err := svc.repo.SaveContent(ctx, pair, urls, text); err != nil {
			return Content{}, err
		}
	}
	return svc.GetContent(ctx, sess, pair)
}

func sniffImage(upload Upload) (*mimetype.MIME, error) {
	if len(upload.Data) == 0 {
		return nil, core.NewValidationError(ErrEmptyFile, core.FieldError{Field: "images", Error: ErrEmptyFile.Error()})
	}
	mtype := mimetype.Detect(upload.Data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, core.NewValidationError(
			ErrNotAnImage,
			core.FieldError{Field: "images", Error: fmt.Sprintf("%s: %s", upload.Filename, ErrNotAnImage)},
		)
	}
	return mtype, nil
}

// storeImage sniffs upload, stores it under the pair's prefix and returns its public URL.
func (svc *service) storeImage(ctx context.Context, pair Pair, upload Upload) (string, error) {
	mtype, err := sniffImage(upload)
	if err != nil {
		return "", err
	}

	path := ObjectPath(pair, mtype.Extension())
	if err = svc.objects.Upload(ctx, path, bytes.NewReader(upload.Data), mtype.String()); err != nil {
		if svc.logger != nil {
			svc.logger.Error("image upload failed", err, map[string]interface{}{"path": path})
		}
		return "", core.NewRemoteCallError("uploading "+upload.Filename, err)
	}
	return svc.objects.PublicURL(path), nil
}

// ObjectPath returns class_{classID}/instr_{instructorID}/{unix ms}_{rand}.{ext}.
func ObjectPath(pair Pair, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "bin"
	}
	random := strconv.FormatInt(rand.Int63n(2176782336), 36) // up to 6 base36 chars
	return fmt.Sprintf(
		"class_%d/instr_%s/%d_%s.%s",
		pair.ClassID, pair.InstructorID, NowFunc().UnixNano()/1e6, random, ext,
	)
}
