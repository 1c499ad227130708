//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

const shaderDir = "shaders"

var shaderStages = []string{".vert", ".frag", ".comp"}

type Build mg.Namespace

// Compiles every GLSL stage under shaders/ to SPIR-V next to its source.
func (Build) Shaders() error {
	entries, err := os.ReadDir(shaderDir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", shaderDir, err)
	}
	compiled := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isShaderStage(name) {
			continue
		}
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.0", name, "-o", name+".spv"), withDir(shaderDir)); err != nil {
			return err
		}
		compiled++
	}
	fmt.Printf("Compiled %d shaders\n", compiled)
	return nil
}

// Builds the engine binary into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "quaternion"), "."), withStream()); err != nil {
		return err
	}
	return nil
}

func isShaderStage(name string) bool {
	for _, ext := range shaderStages {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
