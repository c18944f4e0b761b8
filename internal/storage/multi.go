package storage

import (
	"errors"

	"github.com/LdDl/termites-go/mot"
)

type multiWriter []mot.TrailWriter

// MultiWriter persists trails through every writer in order.
// All writers are tried; their failures are joined.
func MultiWriter(writers ...mot.TrailWriter) mot.TrailWriter {
	all := make(multiWriter, 0, len(writers))
	for _, writer := range writers {
		if writer != nil {
			all = append(all, writer)
		}
	}
	return all
}

func (writers multiWriter) WriteTrails(trails []mot.SubjectTrail) error {
	errs := make([]error, 0)
	for _, writer := range writers {
		if err := writer.WriteTrails(trails); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
