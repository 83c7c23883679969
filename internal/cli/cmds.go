package cli

func regCommands() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(tipCmd)
	rootCmd.AddCommand(gcCmd)
}
