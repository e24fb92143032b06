package root

import (
	"github.com/zenGate-Global/palmyra-directory/apps/cli/cmd/auth"
	"github.com/zenGate-Global/palmyra-directory/apps/cli/cmd/migrate"
	"github.com/zenGate-Global/palmyra-directory/apps/cli/cmd/personal"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(migrate.Command())
	Root().AddCommand(personal.Command())
}
