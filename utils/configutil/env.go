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
package configutil

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvFile exports the variables of a dotenv file, variables already set
// in the process environment win
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("env file [%s] load failed: %v", path, err)
	}
	return nil
}

// ExpandSecrets replaces ${VAR} references in the connection strings and
// credentials of the config sections
func ExpandSecrets(db *DatabaseOptions, wh *WarehouseOptions, sources []*SourceOptions) {
	if db != nil {
		db.URI = os.ExpandEnv(db.URI)
	}
	if wh != nil {
		wh.Password = os.ExpandEnv(wh.Password)
		wh.CredentialsFile = os.ExpandEnv(wh.CredentialsFile)
		wh.Project = os.ExpandEnv(wh.Project)
	}
	for _, s := range sources {
		s.URI = os.ExpandEnv(s.URI)
	}
}
