package fenmove

import (
	"bufio"
	"encoding/gob"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/fenmove/forest"
)

// Model artifact layout: magic, format version, zstd-compressed gob of the forest.
const (
	modelMagic   = "FMVF"
	modelVersion = byte(1)
)

// SaveModel writes f to filename, replacing any existing artifact.
func SaveModel(f *forest.Forest, filename string) (err error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = errors.WithStack(cerr)
		}
	}()

	w := bufio.NewWriter(file)
	if _, err := w.WriteString(modelMagic); err != nil {
		return errors.WithStack(err)
	}
	if err := w.WriteByte(modelVersion); err != nil {
		return errors.WithStack(err)
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := gob.NewEncoder(zw).Encode(f); err != nil {
		zw.Close()
		return errors.Wrap(err, "encode model")
	}
	if err := zw.Close(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(w.Flush())
}

// LoadModel reads a forest written by SaveModel.
func LoadModel(filename string) (*forest.Forest, error) {
	file, err := os.Open(filename)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrModelNotFound, "no model at %s", filename)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	header := make([]byte, len(modelMagic)+1)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, errors.Wrapf(err, "read model header of %s", filename)
	}
	if string(header[:len(modelMagic)]) != modelMagic {
		return nil, errors.Errorf("%s is not a model artifact", filename)
	}
	if v := header[len(modelMagic)]; v != modelVersion {
		return nil, errors.Errorf("%s has model format version %d, want %d", filename, v, modelVersion)
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer zr.Close()

	f := new(forest.Forest)
	if err := gob.NewDecoder(zr).Decode(f); err != nil {
		return nil, errors.Wrapf(err, "decode model %s", filename)
	}
	if err := f.Validate(); err != nil {
		return nil, errors.WithMessage(err, filename)
	}
	return f, nil
}
