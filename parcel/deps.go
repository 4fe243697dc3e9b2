package parcel

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Deps bundles the collaborators shared by every workflow. Zero fields
// are filled by Defaults.
type Deps struct {
	// Locker serializes work on one entity across server instances. Nil
	// leaves serialization to the store's transactions.
	Locker Locker
	Log    logrus.FieldLogger
	Now    Clock
}

func (d Deps) Defaults() Deps {
	if d.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		d.Log = l
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Acquire takes key on the Locker, or returns a no-op release when none is set.
func (d Deps) Acquire(ctx context.Context, key string) (func(), error) {
	if d.Locker == nil {
		return func() {}, nil
	}
	return d.Locker.Lock(ctx, key)
}

// =============================================================================
// VALIDATION
// =============================================================================

var validate = validator.New()

// Validate checks struct tags and reports the first failure as an
// InvalidArgumentError.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := "failed " + fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		return InvalidArgument(fe.Field(), reason)
	}
	return InvalidArgument("", err.Error())
}
