// Package providers imports all provider packages to trigger their init() registration.
package providers

import (
	_ "github.com/yuriy-kovalchuk/yk-domain-connector/internal/provider/azure"
)
