package shadowcal

import (
	"shadowcal.xdoubleu.com/apps/shadowcal/pkg/gcal"
)

type Clients struct {
	Calendar gcal.Client
}
