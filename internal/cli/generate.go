package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/reunify/internal/capture"
	"github.com/rcliao/reunify/internal/letter"
	"github.com/rcliao/reunify/internal/style"
)

func init() {
	reunifyCmd := &cobra.Command{
		Use:   "reunify",
		Short: "Blend two photos into one image",
		Run:   runReunify,
	}
	reunifyCmd.Flags().String("a", "", "First photo (required)")
	reunifyCmd.Flags().String("b", "", "Second photo (required)")
	reunifyCmd.Flags().StringP("style", "s", string(style.Default), "Style: "+styleKeys())
	reunifyCmd.Flags().StringP("out", "o", "reunify-moment.png", "Output image file")
	reunifyCmd.MarkFlagRequired("a")
	reunifyCmd.MarkFlagRequired("b")

	letterCmd := &cobra.Command{
		Use:   "letter [context]",
		Short: "Write a letter to go with a reunified photo",
		Long:  "Write a two-paragraph letter. Context can be a positional arg or piped via stdin.",
		Run:   runLetter,
	}

	RootCmd.AddCommand(reunifyCmd, letterCmd)
}

func styleKeys() string {
	var keys []string
	for _, s := range style.All() {
		keys = append(keys, string(s.Key))
	}
	return strings.Join(keys, ", ")
}

func runReunify(cmd *cobra.Command, args []string) {
	pathA, _ := cmd.Flags().GetString("a")
	pathB, _ := cmd.Flags().GetString("b")
	styleStr, _ := cmd.Flags().GetString("style")
	out, _ := cmd.Flags().GetString("out")

	preset, err := style.Parse(styleStr)
	if err != nil {
		exitErr("style", err)
	}
	photoA, err := capture.ReadImageFile(pathA)
	if err != nil {
		exitErr("read "+pathA, err)
	}
	photoB, err := capture.ReadImageFile(pathB)
	if err != nil {
		exitErr("read "+pathB, err)
	}

	cfg := loadConfig()
	gen := newGenerator(cfg, newLogger(cfg))
	img, err := gen.Reunify(cmd.Context(), photoA, photoB, preset)
	if err != nil {
		exitErr("reunify", err)
	}
	b, err := img.Bytes()
	if err != nil {
		exitErr("decode image", err)
	}
	if err := os.WriteFile(out, b, 0o644); err != nil {
		exitErr("write "+out, err)
	}

	printJSON(map[string]any{"ok": true, "out": out, "style": preset, "mime_type": img.MIMEType, "bytes": len(b)})
}

func runLetter(cmd *cobra.Command, args []string) {
	about, err := textInput(args)
	if err != nil {
		exitErr("read stdin", err)
	}

	cfg := loadConfig()
	gen := newGenerator(cfg, newLogger(cfg))
	text, err := gen.GenerateLetter(cmd.Context(), about)
	if err != nil {
		exitErr("letter", err)
	}
	fmt.Println(letter.Clean(text))
}
