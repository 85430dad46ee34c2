package transform

import (
	"github.com/user/sdtmflow"
	"github.com/user/sdtmflow/pkg/reference"
	"github.com/user/sdtmflow/pkg/terminology"
)

// RunContext carries the immutable inputs shared by every component call of one run.
type RunContext struct {
	StudyID   string
	Codelists *terminology.Registry
	// Reference supplies RFSTDTC for derived study days. Nil disables the derivation.
	Reference *reference.Set
	Logger    sdtmflow.Logger
}

func (rc RunContext) logger() sdtmflow.Logger {
	if rc.Logger == nil {
		return sdtmflow.NopLogger{}
	}
	return rc.Logger
}
