//go:build !linux && !darwin

package source

import (
	"context"

	"github.com/pranshuparmar/witl/pkg/model"
)

// Windows services are classified by the Restart Manager app type instead.
func detectPlatform(context.Context, int) *model.Source {
	return nil
}
