package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
	"github.com/saturnino-fabrica-de-software/findperson/internal/service"
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode reference photos into an embeddings file",
	Long: `Detect the face in each reference photo and store its embedding.
The first face of every image is used.

Examples:
  # Encode two photos into ref.json
  findperson encode --image a.jpg --image b.jpg --out ref.json

  # Print the encoded reference
  findperson encode --image a.jpg`,
	RunE: runEncode,
}

func init() {
	encodeCmd.Flags().StringArray("image", nil, "Reference photo (repeatable)")
	encodeCmd.Flags().String("name", "", "Reference name (default: first image file name)")
	encodeCmd.Flags().String("out", "", "Output file (default: stdout)")
	_ = encodeCmd.MarkFlagRequired("image")
}

// referenceFile is the on-disk form of an encoded reference
type referenceFile struct {
	Name       string      `json:"name"`
	Provider   string      `json:"provider"`
	Embeddings [][]float64 `json:"embeddings,omitempty"`
	// Image is kept for providers that compare images
	Image []byte `json:"image,omitempty"`
}

func newReferenceFile(ref *domain.Reference) referenceFile {
	return referenceFile{
		Name:       ref.Name,
		Provider:   ref.Provider,
		Embeddings: ref.Embeddings,
		Image:      ref.Image,
	}
}

// reference restores the file as a reference for providerName
func (f referenceFile) reference(providerName string) (*domain.Reference, error) {
	if f.Provider != "" && f.Provider != providerName {
		return nil, fmt.Errorf("embeddings were made with %q, configured provider is %q", f.Provider, providerName)
	}
	if len(f.Embeddings) == 0 && len(f.Image) == 0 {
		return nil, errors.New("embeddings file holds no embeddings")
	}
	return &domain.Reference{
		Name:       f.Name,
		Provider:   f.Provider,
		Embeddings: f.Embeddings,
		Image:      f.Image,
	}, nil
}

func loadReferenceFile(path string) (referenceFile, error) {
	var f referenceFile
	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

func readImages(paths []string) ([][]byte, error) {
	images := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	return images, nil
}

func nameFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func runEncode(cmd *cobra.Command, args []string) error {
	paths, _ := cmd.Flags().GetStringArray("image")
	name, _ := cmd.Flags().GetString("name")
	out, _ := cmd.Flags().GetString("out")

	if name == "" {
		name = nameFromPath(paths[0])
	}

	cfg, logger, err := engine()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	p, release, err := openProvider(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	images, err := readImages(paths)
	if err != nil {
		return err
	}

	refs := service.NewReferenceService(nil, p, service.WithReferenceLogger(logger))
	ref, err := refs.Encode(ctx, name, images)
	if err != nil {
		return fmt.Errorf("failed to encode reference: %w", err)
	}

	data, err := json.MarshalIndent(newReferenceFile(ref), "", "  ")
	if err != nil {
		return err
	}

	if out == "" {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Encoded %d image(s) with %s into %s\n", len(images), ref.Provider, out)
	return nil
}
