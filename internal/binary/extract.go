package binary

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ArchiveKind is the container format of a release asset.
type ArchiveKind int

const (
	ArchiveRaw ArchiveKind = iota
	ArchiveTarGz
	ArchiveZip
)

// archiveKindOf infers the archive format from a file name.
func archiveKindOf(name string) ArchiveKind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return ArchiveTarGz
	case strings.HasSuffix(lower, ".zip"):
		return ArchiveZip
	default:
		return ArchiveRaw
	}
}

// Extractor pulls the tool executable out of a downloaded asset.
type Extractor struct{}

// NewExtractor creates a new extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractBinary writes the file named binaryName from archivePath to destPath.
// Raw assets are copied as they are.
func (e *Extractor) ExtractBinary(archivePath, destPath, binaryName string) error {
	switch archiveKindOf(archivePath) {
	case ArchiveTarGz:
		return e.extractFromTarGz(archivePath, destPath, binaryName)
	case ArchiveZip:
		return e.extractFromZip(archivePath, destPath, binaryName)
	default:
		f, err := os.Open(archivePath)
		if err != nil {
			return fmt.Errorf("open asset: %w", err)
		}
		defer f.Close()
		return writeExecutable(destPath, f)
	}
}

func (e *Extractor) extractFromTarGz(archivePath, destPath, binaryName string) error {
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	gzipReader, err := gzip.NewReader(archiveFile)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return fmt.Errorf("binary %s not found in archive", binaryName)
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		if header.Typeflag == tar.TypeReg && path2base(header.Name) == binaryName {
			return writeExecutable(destPath, tarReader)
		}
	}
}

func (e *Extractor) extractFromZip(archivePath, destPath, binaryName string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || path2base(f.Name) != binaryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open %s in zip: %w", f.Name, err)
		}
		err = writeExecutable(destPath, rc)
		rc.Close()
		return err
	}
	return fmt.Errorf("binary %s not found in archive", binaryName)
}

// path2base returns the last element of an archive member name, which always
// uses forward slashes but may come from a Windows packer using backslashes.
func path2base(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func writeExecutable(destPath string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	outFile, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(outFile, r); err != nil {
		outFile.Close()
		return fmt.Errorf("write file: %w", err)
	}

	return outFile.Close()
}

// SetExecutable sets executable permissions on a file
func SetExecutable(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if err := os.Chmod(path, 0755); err != nil {
		return fmt.Errorf("set executable: %w", err)
	}
	return nil
}
