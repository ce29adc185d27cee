package cmd

import (
	"fmt"

	"github.com/apex/log"
	"github.com/machog/machog/pkg/gadget"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(gadgetCmd)
}

// gadgetCmd represents the gadget command
var gadgetCmd = &cobra.Command{
	Use:           "gadget <mach-o> <name:bytes>...",
	Short:         "Scan executable segments for gadget byte patterns",
	Args:          cobra.MinimumNArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		img, err := openImage(args[0])
		if err != nil {
			return err
		}

		gadgets := make([]*gadget.Gadget, 0, len(args)-1)
		for _, arg := range args[1:] {
			g, err := gadget.Decode(arg)
			if err != nil {
				return err
			}
			log.Debugf("gadget %s: % x", g.Name, g.Data)
			gadgets = append(gadgets, g)
		}

		gadget.Find(img, gadgets)

		for _, g := range gadgets {
			if g.Address == 0 {
				fmt.Printf("%-32s = 0\n", g.Name)
			} else {
				fmt.Printf("%-32s = %#x\n", g.Name, g.Address)
			}
		}

		return nil
	},
}
