// Command mkfs builds an EFS disk image from a host skeleton directory,
// matching biscuit/src/mkfs's addfiles/copydata walk (spec.md C17,
// "build a filesystem image from a host directory tree").
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"efskernel/fs"
)

const (
	totalBlocks       = 32 * 1024 // 16 MiB image
	inodeBitmapBlocks = 1
)

func copydata(hostPath string, inode *fs.Inode) error {
	src, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer src.Close()

	buf := make([]byte, fs.BlockSize)
	var offset uint32
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			written := inode.WriteAt(offset, buf[:n])
			if written != n {
				return fmt.Errorf("short write to %s", hostPath)
			}
			offset += uint32(written)
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

func addFiles(root *fs.Inode, skelDir string) error {
	return filepath.WalkDir(skelDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("accessing %q: %w", path, err)
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(path, skelDir), string(os.PathSeparator))
		if rel == "" {
			return nil
		}
		if d.IsDir() {
			if path != skelDir {
				fmt.Printf("skipping subdirectory %s (EFS root directory is flat)\n", rel)
				return filepath.SkipDir
			}
			return nil
		}
		inode, ok := root.Create(rel)
		if !ok {
			return fmt.Errorf("creating %s in image", rel)
		}
		return copydata(path, inode)
	})
}

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: mkfs <output image> <skeleton dir>\n")
		os.Exit(1)
	}
	imagePath, skelDir := os.Args[1], os.Args[2]

	dev, err := fs.OpenFileDevice(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: %v\n", err)
		os.Exit(1)
	}
	if err := dev.Truncate(totalBlocks); err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: %v\n", err)
		os.Exit(1)
	}

	efs := fs.Create(dev, totalBlocks, inodeBitmapBlocks)
	root := efs.RootInode()

	if err := addFiles(root, skelDir); err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: %v\n", err)
		os.Exit(1)
	}

	if err := dev.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d blocks) from %s\n", imagePath, totalBlocks, skelDir)
}
