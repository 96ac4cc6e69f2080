package notify

import (
	"errors"

	"github.com/iliyamo/homewatch/internal/repository"
)

func isNotFound(err error) bool { return errors.Is(err, repository.ErrNotFound) }
