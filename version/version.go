/*
Copyright © 2020 Marvin

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package version

import (
	"fmt"
	"runtime"

	"github.com/wentaojin/docwh/logger"
	"go.uber.org/zap"
)

// Version information, overridden at link time with -ldflags "-X ..."
var (
	ReleaseVersion = "None"
	BuildTS        = "None"
	GitHash        = "None"
	GitBranch      = "None"
)

// GetRawVersionInfo returns the version block printed by the -V flag
func GetRawVersionInfo() string {
	var info string
	info += fmt.Sprintf("Release Version: %s\n", ReleaseVersion)
	info += fmt.Sprintf("Git Commit Hash: %s\n", GitHash)
	info += fmt.Sprintf("Git Branch: %s\n", GitBranch)
	info += fmt.Sprintf("UTC Build Time: %s\n", BuildTS)
	info += fmt.Sprintf("Go Version: %s\n", runtime.Version())
	return info
}

// RecordAppVersion logs the version together with the effective config at startup
func RecordAppVersion(app string, cfg string) {
	logger.Info("welcome to "+app,
		zap.String("release version", ReleaseVersion),
		zap.String("git hash", GitHash),
		zap.String("git branch", GitBranch),
		zap.String("utc build time", BuildTS),
		zap.String("go version", runtime.Version()),
		zap.String("config", cfg))
}
