package source

import "github.com/pranshuparmar/witl/pkg/model"

var shells = map[string]bool{
	"bash":           true,
	"zsh":            true,
	"sh":             true,
	"fish":           true,
	"csh":            true,
	"tcsh":           true,
	"ksh":            true,
	"dash":           true,
	"cmd.exe":        true,
	"powershell.exe": true,
	"pwsh.exe":       true,
}

func detectShell(ancestry []model.Process) *model.Source {
	// closest shell to the holder, not the login shell
	for i := len(ancestry) - 1; i >= 0; i-- {
		if shells[ancestry[i].Command] {
			return &model.Source{
				Type:       model.SourceShell,
				Name:       ancestry[i].Command,
				Confidence: 0.5,
			}
		}
	}
	return nil
}
