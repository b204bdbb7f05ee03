//go:build !linux || !(amd64 || arm64)

/*
 *
 * Copyright 2026 The statecast Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package statecast

func init() {
	unmapMemory = func([]byte) error { return nil }
}

// createRegion is not supported on this platform
func createRegion(name string, cfg Config) (*Region, error) {
	return nil, ErrPlatformUnsupported
}

// openRegion is not supported on this platform
func openRegion(name string) (*Region, error) {
	return nil, ErrPlatformUnsupported
}
