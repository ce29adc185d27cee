package cmd

import (
	"fmt"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(infoCmd)
}

var bold = color.New(color.Bold).SprintFunc()

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:           "info <mach-o>",
	Short:         "Print segments, sections and symbol table layout",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
		color.NoColor = !viper.GetBool("color")

		img, err := openImage(args[0])
		if err != nil {
			return err
		}

		width := 32
		if img.Is64() {
			width = 64
		}
		fmt.Printf("%s %d-bit, %s\n", bold("Mach-O"), width, humanize.Bytes(img.Size()))

		if base, err := img.FindBase(); err == nil {
			fmt.Printf("%s %#x\n", bold("Base:"), base)
		}

		fmt.Println(bold("\nSEGMENTS"))
		for seg := img.NextSegment(nil); seg != nil; seg = img.NextSegment(seg) {
			fmt.Printf("%-16s addr=%#09x-%#09x  off=%#08x-%#08x  %s/%s  %s\n",
				seg.Name,
				seg.Addr, seg.Addr+seg.Memsz,
				seg.Offset, seg.Offset+seg.Filesz,
				seg.Prot, seg.Maxprot,
				humanize.Bytes(seg.Memsz))
			for _, sect := range img.Sections(seg) {
				fmt.Printf("    %-28s addr=%#09x-%#09x  %s\n",
					seg.Name+"."+sect.Name, sect.Addr, sect.Addr+sect.Size,
					humanize.Bytes(sect.Size))
			}
		}

		if st := img.Symtab(); st != nil {
			fmt.Println(bold("\nSYMTAB"))
			fmt.Printf("%d symbols at %#x, %s of strings at %#x\n",
				st.Nsyms, st.Symoff, humanize.Bytes(uint64(st.Strsize)), st.Stroff)
		}

		return nil
	},
}
