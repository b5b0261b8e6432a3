package cli

import (
	"fmt"

	pkgutils "example.com/multiping/pkg/utils"
)

type VersionCmd struct{}

func (versionCmd *VersionCmd) Run(sharedCtx *pkgutils.GlobalSharedContext) error {
	fmt.Println(sharedCtx.BuildVersion.String())
	return nil
}
