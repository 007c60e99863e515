/*
Package executable starts and stops the internal helper programs the NUC
asks for through HandleExecutable commands.

Requests arrive as action:launchType:path:parameters:isVr. Colons inside
the path and parameters are escaped as % by the sender.
*/
package executable
