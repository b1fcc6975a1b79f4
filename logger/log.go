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
package logger

import (
	"go.uber.org/zap"
)

func callerLogger() *zap.Logger {
	return GetRootLogger().WithOptions(zap.AddCallerSkip(1))
}

func Debug(msg string, fields ...zap.Field) {
	callerLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	callerLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	callerLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	callerLogger().Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	callerLogger().Fatal(msg, fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	return GetRootLogger().Sync()
}
